package sfm

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gopkg.in/yaml.v3"

	"go.viam.com/sfm/logging"
)

// Config contains the parameters of a reconstruction run. The ratio threshold and the minimum
// match count are fixed by the keypoints package and are not configurable.
type Config struct {
	// StrictContinuity makes a continued feature without a track fail the step instead of only
	// being logged.
	StrictContinuity bool `json:"strict_continuity" yaml:"strict_continuity"`
	// Audit runs a full store validation after every consolidation.
	Audit bool                          `json:"audit" yaml:"audit"`
	Debug bool                          `json:"debug" yaml:"debug"`
	Log   []logging.LoggerPatternConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	for i, lpc := range cfg.Log {
		if lpc.Pattern == "" {
			return utils.NewConfigValidationFieldRequiredError(fmt.Sprintf("%s.log.%d", path, i), "pattern")
		}
		if err := lpc.Validate(); err != nil {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.log.%d", path, i), err)
		}
	}
	return nil
}

// DefaultLevel is the level of every pipeline logger no log pattern matches.
func (cfg *Config) DefaultLevel() logging.Level {
	if cfg.Debug {
		return logging.DEBUG
	}
	return logging.INFO
}

// LoadConfig loads a configuration from a json or yaml file, chosen by extension.
func LoadConfig(path string) (*Config, error) {
	configFile, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(configFile.Close)

	cfg, err := DecodeConfig(configFile, isYAML(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	if err := cfg.Validate(filepath.Base(path)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DecodeConfig reads a configuration in json, or in yaml when asYAML is set. Unknown fields are
// rejected.
func DecodeConfig(r io.Reader, asYAML bool) (*Config, error) {
	var cfg Config
	if asYAML {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return &cfg, nil
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
