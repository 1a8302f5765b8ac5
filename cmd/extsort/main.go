package main

//
// sort a file of little-endian 4-byte integers:
//
// extsort sort input.bin 1000000
//
// prints the location of the sorted run, which `extsort cat` and
// `extsort verify` accept.
//

import (
	"os"

	"github.com/convox/stdcli"
)

var version = "dev"

func main() {
	os.Exit(newEngine().Execute(os.Args[1:]))
}

func newEngine() *stdcli.Engine {
	e := stdcli.New("extsort", version)

	e.Command("sort", "sort a file of 4-byte integers", Sort, stdcli.CommandOptions{
		Flags: []stdcli.Flag{
			flagConfig,
			flagDir,
			flagKeep,
			flagMonitor,
			flagProgress,
			flagStore,
			flagWorkers,
		},
		Usage:    "<file> <batch-size>",
		Validate: stdcli.Args(2),
	})

	e.Command("cat", "print a sorted run as text", Cat, stdcli.CommandOptions{
		Usage:    "<location>",
		Validate: stdcli.Args(1),
	})

	e.Command("verify", "check that a run is in ascending order", Verify, stdcli.CommandOptions{
		Usage:    "<location>",
		Validate: stdcli.Args(1),
	})

	e.Command("generate", "write random input for sort", Generate, stdcli.CommandOptions{
		Flags:    []stdcli.Flag{stdcli.IntFlag("seed", "", "random seed")},
		Usage:    "<file> <count>",
		Validate: stdcli.Args(2),
	})

	return e
}
