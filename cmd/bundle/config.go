package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// EnvPrefix is prepended to the upper case flag name to form its environment variable.
const EnvPrefix = "BUNDLE_"

var ErrWorkdir = errors.New("working directory is not a directory")

// Config holds the settings shared by every command.
type Config struct {
	Workdir  string
	LogLevel string
	LogJSON  bool
	NoGunzip bool
	NoJSON   bool
}

// Register binds the config fields to the flag set with their defaults.
func Register(fs *pflag.FlagSet, c *Config) {
	fs.StringVarP(&c.Workdir, "workdir", "w", ".", "directory that bundle archives are moved to and extracted in")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.BoolVar(&c.LogJSON, "log-json", false, "JSON logs (true) or console (false)")
	fs.BoolVar(&c.NoGunzip, "no-gunzip", false, "skip expanding the .gz files of an extracted bundle")
	fs.BoolVar(&c.NoJSON, "no-json", false, "skip formatting the .json files of an extracted bundle")
}

// FillFromEnv sets any flag not explicitly passed on the command line from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *pflag.FlagSet, prefix string, logf func(string, ...any)) {
	fs.VisitAll(func(f *pflag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if f.Changed {
			if logf != nil {
				logf("flag --%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = f.Value.Set(prev)
			f.Changed = false
			if logf != nil {
				logf("flag --%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate returns an error describing all the invalid fields, or nil if all are valid.
func (c Config) Validate() error {
	var errs []error
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	st, err := os.Stat(c.Workdir)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("invalid WORKDIR %q: %w", c.Workdir, err))
	case !st.IsDir():
		errs = append(errs, fmt.Errorf("invalid WORKDIR %q: %w", c.Workdir, ErrWorkdir))
	}
	return errors.Join(errs...)
}

// Logger returns a logger writing to stderr at the configured level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	if c.LogJSON {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger %w", err)
	}
	return l, nil
}
