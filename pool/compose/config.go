package compose

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/poolkit/pool"
	"github.com/joshuapare/poolkit/pool/container"
	"github.com/joshuapare/poolkit/pool/layer"
	"github.com/joshuapare/poolkit/pool/region"
)

// Region kinds accepted by Config.Region.
const (
	RegionFixed     = "fixed"
	RegionDynamic   = "dynamic"
	RegionMapped    = "mapped"
	RegionAnonymous = "anonymous"
)

// DefaultSize is the region size used when Config.Size is zero.
const DefaultSize = 64 << 10

// Config describes a pool. The zero value is a 64 KiB fixed in-place
// first-fit pool.
//
// Example file:
//
//	region: mapped
//	path: /var/tmp/pool.bin
//	size: 1048576
//	container: referenced
//	strategy: bestfit
//	defrag: true
//	fallback: enabled
//	instrument: true
//	threadSafe: true
//	nodeCount: 4096
type Config struct {
	Region string `yaml:"region" json:"region"`
	// Path is the backing file of a mapped region.
	Path string `yaml:"path" json:"path"`
	Size int    `yaml:"size" json:"size"`

	Container string `yaml:"container" json:"container"`
	Strategy  string `yaml:"strategy" json:"strategy"`

	MinFragment int  `yaml:"minFragment" json:"minFragment"`
	NodeCount   int  `yaml:"nodeCount" json:"nodeCount"`
	BoundsCheck bool `yaml:"boundsCheck" json:"boundsCheck"`

	Defrag     bool   `yaml:"defrag" json:"defrag"`
	Fallback   string `yaml:"fallback" json:"fallback"`
	Instrument bool   `yaml:"instrument" json:"instrument"`
	ThreadSafe bool   `yaml:"threadSafe" json:"threadSafe"`
}

// ErrInvalidConfig is returned by Validate and Build for malformed configs.
var ErrInvalidConfig = errors.New("compose: invalid config")

// LoadConfig reads a YAML config file. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "compose: open config")
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrapf(err, "compose: parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes a YAML document.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "compose: parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (cfg Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "compose: marshal config")
	}
	return out, nil
}

// Validate checks field values without building anything.
func (cfg Config) Validate() error {
	if cfg.Size < 0 {
		return errors.Wrapf(ErrInvalidConfig, "size %d", cfg.Size)
	}
	switch strings.ToLower(cfg.Region) {
	case "", RegionFixed, RegionDynamic, RegionAnonymous:
	case RegionMapped:
		if cfg.Path == "" {
			return errors.Wrap(ErrInvalidConfig, "mapped region needs a path")
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "region %q", cfg.Region)
	}
	if _, err := cfg.fallbackMode(); err != nil {
		return err
	}
	switch Kind(strings.ToLower(cfg.Container)) {
	case "", InPlace:
		if cfg.Defrag {
			return errors.Wrap(ErrInvalidConfig, "defrag needs a referenced container")
		}
	case Referenced:
	default:
		return errors.Wrapf(ErrInvalidConfig, "container %q", cfg.Container)
	}
	switch Strategy(strings.ToLower(cfg.Strategy)) {
	case "", FirstFit, BestFit, WorstFit:
	default:
		return errors.Wrapf(ErrInvalidConfig, "strategy %q", cfg.Strategy)
	}
	return nil
}

func (cfg Config) fallbackMode() (layer.FallbackMode, error) {
	switch strings.ToLower(cfg.Fallback) {
	case "", "disabled":
		return layer.FallbackDisabled, nil
	case "enabled":
		return layer.FallbackEnabled, nil
	case "always":
		return layer.FallbackAlways, nil
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "fallback %q", cfg.Fallback)
}

func (cfg Config) size() int {
	if cfg.Size == 0 {
		return DefaultSize
	}
	return cfg.Size
}

func (cfg Config) region() (pool.Region, error) {
	switch strings.ToLower(cfg.Region) {
	case RegionDynamic:
		d := region.NewDynamic()
		d.InitMem(cfg.size(), make([]byte, cfg.size()))
		return d, nil
	case RegionMapped:
		m, err := region.OpenMapped(cfg.Path, cfg.size())
		if err != nil {
			return nil, err
		}
		return m, nil
	case RegionAnonymous:
		m, err := region.NewAnonymous(cfg.size())
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return region.NewFixed(cfg.size()), nil
}

// Build creates the region and the pool cfg describes. Mapped regions are
// released again when the pool cannot be built.
func (cfg Config) Build() (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := cfg.fallbackMode()

	r, err := cfg.region()
	if err != nil {
		return nil, errors.Wrap(err, "compose: region")
	}
	opts := &container.Options{
		MinFragment: cfg.MinFragment,
		NodeCount:   cfg.NodeCount,
		BoundsCheck: cfg.BoundsCheck,
	}
	p, err := New(r, Kind(strings.ToLower(cfg.Container)), Strategy(strings.ToLower(cfg.Strategy)), opts, Layers{
		Defrag:     cfg.Defrag,
		Fallback:   mode,
		Instrument: cfg.Instrument,
		ThreadSafe: cfg.ThreadSafe,
	})
	if err != nil {
		if m, ok := r.(*region.Mapped); ok {
			err = errors.CombineErrors(err, m.Close())
		}
		return nil, err
	}
	return p, nil
}
