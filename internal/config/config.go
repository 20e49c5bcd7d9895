// Package config reads solver settings from a TOML file.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"

	"github.com/operator-framework/wcsp/internal/network"
	"github.com/operator-framework/wcsp/pkg/wcsp"
)

// Duration is a time.Duration written as a string such as "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	// UpperBound overrides the upper bound of the problem file when
	// positive.
	UpperBound      int64    `toml:"upper_bound" validate:"gte=0"`
	CostMultiplier  int64    `toml:"cost_multiplier" validate:"gte=1"`
	Propagation     string   `toml:"propagation" validate:"oneof=nc ac dac"`
	SortDomains     bool     `toml:"sort_domains"`
	HardCheck       bool     `toml:"hard_check"`
	HardCheckBudget Duration `toml:"hard_check_budget" validate:"gte=0"`
	TimeLimit       Duration `toml:"time_limit" validate:"gte=0"`
	NodeLimit       int64    `toml:"node_limit" validate:"gte=0"`
	Output          string   `toml:"output" validate:"oneof=text yaml"`
	MetricsFile     string   `toml:"metrics_file"`
	LogLevel        string   `toml:"log_level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

func Default() Config {
	return Config{
		CostMultiplier: 1,
		Propagation:    "ac",
		Output:         "text",
		LogLevel:       "info",
	}
}

// Decode reads a configuration on top of the defaults. Unknown keys are
// rejected.
func Decode(r io.Reader) (Config, error) {
	c := Default()
	md, err := toml.NewDecoder(r).Decode(&c)
	if err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load decodes the file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) Level() (network.Level, error) {
	return network.ParseLevel(c.Propagation)
}

func (c Config) Logging() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

func (c Config) Ub() wcsp.Cost {
	return wcsp.Cost(c.UpperBound)
}
