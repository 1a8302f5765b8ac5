package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))

	return path
}

// isolate points the home directory somewhere empty so a developer's own
// config never leaks into a test.
func isolate(t *testing.T) {
	homedir.DisableCache = true
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"EXTSORT_WORKDIR", "EXTSORT_STORE", "EXTSORT_WORKERS", "EXTSORT_BLOCK_SIZE", "EXTSORT_KEEP"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	path := writeConfig(t, "workdir: /var/tmp/sort\nworkers: 3\nstore: bolt\nkeep: true\nblock_size: 512\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Config{WorkDir: "/var/tmp/sort", Workers: 3, Store: StoreBolt, Keep: true, BlockSize: 512}, cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(writeConfig(t, "workers: 0\n"))
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Workers)
	require.Equal(t, StoreFile, cfg.Store)
	require.Equal(t, 4096, cfg.BlockSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	isolate(t)

	t.Setenv("EXTSORT_WORKDIR", "/tmp/env")
	t.Setenv("EXTSORT_STORE", "file")
	t.Setenv("EXTSORT_WORKERS", "7")
	t.Setenv("EXTSORT_BLOCK_SIZE", "64")
	t.Setenv("EXTSORT_KEEP", "true")

	cfg, err := Load(writeConfig(t, "workdir: /tmp/file\nstore: bolt\nworkers: 2\n"))
	require.NoError(t, err)
	require.Equal(t, Config{WorkDir: "/tmp/env", Workers: 7, Store: StoreFile, Keep: true, BlockSize: 64}, cfg)
}

func TestLoadDefaultPath(t *testing.T) {
	isolate(t)

	path, err := DefaultPath()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, ioutil.WriteFile(path, []byte("workers: 5\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Workers)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "workers: [\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "store: s3\n"))
	require.EqualError(t, err, "unknown store: s3")

	t.Setenv("EXTSORT_WORKERS", "many")
	_, err = Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		err    string
	}{
		{"store", func(c *Config) { c.Store = "" }, "unknown store: "},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers must not be negative, got -1"},
		{"block size", func(c *Config) { c.BlockSize = 0 }, "block size must be at least 1, got 0"},
		{"workdir", func(c *Config) { c.WorkDir = "" }, "workdir is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())

			tc.modify(&cfg)
			require.EqualError(t, cfg.Validate(), tc.err)
		})
	}
}
