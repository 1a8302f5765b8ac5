package extsort

import "time"

// Result describes the terminal run of a job.
type Result struct {
	// Run is the id of the terminal run in the store.
	Run string
	// Location is where the run can be read back with store.OpenLocation.
	Location string

	Chunks   int
	Merges   int
	Elements int64
	Elapsed  time.Duration
}
