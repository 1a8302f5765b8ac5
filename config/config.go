// Package config loads extsort settings from an optional YAML file and the
// environment.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

const (
	StoreFile = "file"
	StoreBolt = "bolt"
)

// Config holds the settings of a sort job that do not come from its
// positional arguments.
type Config struct {
	// WorkDir is where run files or the bolt database are created.
	WorkDir string `yaml:"workdir"`
	// Workers caps the number of concurrent tasks; 0 means unbounded.
	Workers int `yaml:"workers"`
	// Store selects the run store backend, "file" or "bolt".
	Store string `yaml:"store"`
	// Keep leaves intermediate runs behind after they are merged.
	Keep bool `yaml:"keep"`
	// BlockSize is the number of values per encoded block in run files.
	BlockSize int `yaml:"block_size"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		WorkDir:   os.TempDir(),
		Workers:   runtime.NumCPU(),
		Store:     StoreFile,
		BlockSize: 4096,
	}
}

// DefaultPath returns ~/.extsort/config.yml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".extsort", "config.yml"), nil
}

// Load starts from Default, applies the YAML file at path and then the
// EXTSORT_* environment variables. An empty path reads DefaultPath if it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := ioutil.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, errors.Wrapf(err, "parse config %s", path)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("EXTSORT_WORKDIR"); v != "" {
		c.WorkDir = v
	}

	if v := os.Getenv("EXTSORT_STORE"); v != "" {
		c.Store = v
	}

	if v := os.Getenv("EXTSORT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "EXTSORT_WORKERS")
		}
		c.Workers = n
	}

	if v := os.Getenv("EXTSORT_BLOCK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "EXTSORT_BLOCK_SIZE")
		}
		c.BlockSize = n
	}

	if v := os.Getenv("EXTSORT_KEEP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "EXTSORT_KEEP")
		}
		c.Keep = b
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreBolt:
	default:
		return errors.Errorf("unknown store: %s", c.Store)
	}

	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}

	if c.BlockSize < 1 {
		return errors.Errorf("block size must be at least 1, got %d", c.BlockSize)
	}

	if c.WorkDir == "" {
		return errors.New("workdir is required")
	}

	return nil
}
