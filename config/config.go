package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/evanphx/userprog/abi"
)

// Config describes one boot of the machine.
type Config struct {
	// Root is a host directory served as the filesystem. Mutually
	// exclusive with Image.
	Root string `yaml:"root"`

	// Image is a tar archive loaded into an in-memory filesystem.
	Image string `yaml:"image"`

	// FDCapacity bounds the descriptors a process may hold, standard
	// streams included.
	FDCapacity int `yaml:"fd_capacity"`

	// StackSize is the size of each process's writable user stack.
	StackSize uint64 `yaml:"stack_size"`

	Trace bool `yaml:"trace"`

	// LogFile receives kernel logs instead of stderr.
	LogFile string `yaml:"log_file"`

	// Program and Args name the initial process.
	Program string   `yaml:"program"`
	Args    []string `yaml:"args"`
}

var ErrInvalidConfig = errors.New("invalid config")

func Default() *Config {
	return &Config{
		FDCapacity: abi.OpenMax,
		StackSize:  64 * 1024,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Root != "" && c.Image != "" {
		return errors.Wrap(ErrInvalidConfig, "root and image are mutually exclusive")
	}

	if c.FDCapacity <= abi.FirstFileFd {
		return errors.Wrapf(ErrInvalidConfig, "fd_capacity must exceed %d, got %d", abi.FirstFileFd, c.FDCapacity)
	}

	if c.StackSize < 4096 {
		return errors.Wrapf(ErrInvalidConfig, "stack_size too small: %d", c.StackSize)
	}

	return nil
}
