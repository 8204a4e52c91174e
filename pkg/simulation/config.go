package simulation

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/behavior"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
)

//go:embed config.schema.json
var configSchema string

var (
	ErrInvalidAgentCount = errors.New("agent count must be > 0")
	ErrInvalidWorkers    = errors.New("workers must be >= 0")
	ErrInvalidSteps      = errors.New("steps must be >= 0")
	ErrInvalidLogLevel   = errors.New("unknown log level")
	ErrUnknownRule       = errors.New("unknown rule")
)

// Update rules selectable from the config.
const (
	RuleFlockers = "flockers"
	RuleBoids    = "boids"
)

type Config struct {
	// World
	WorldWidth  float64 `json:"worldWidth" yaml:"worldWidth"`
	WorldHeight float64 `json:"worldHeight" yaml:"worldHeight"`
	Wraparound  bool    `json:"wraparound" yaml:"wraparound"`
	BucketSize  float64 `json:"bucketSize" yaml:"bucketSize"`

	// Population
	AgentCount int    `json:"agentCount" yaml:"agentCount"`
	Seed       uint64 `json:"seed" yaml:"seed"`

	// Run
	Steps   int `json:"steps" yaml:"steps"`
	Workers int `json:"workers" yaml:"workers"` // 0 means GOMAXPROCS

	// Rule selects the update: "flockers" (default) or "boids".
	Rule string `json:"rule" yaml:"rule"`

	// Flocking rule
	InteractionRadius float64             `json:"interactionRadius" yaml:"interactionRadius"`
	Jump              float64             `json:"jump" yaml:"jump"`
	RandomMagnitude   float64             `json:"randomMagnitude" yaml:"randomMagnitude"`
	Weights           flock.Weights       `json:"weights" yaml:"weights"`
	Normalization     flock.Normalization `json:"normalization" yaml:"normalization"`

	// Boids rule
	Boids behavior.Settings `json:"boids" yaml:"boids"`

	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

func DefaultConfig() *Config {
	return &Config{
		WorldWidth:        200,
		WorldHeight:       200,
		Wraparound:        true,
		BucketSize:        flock.DefaultRadius,
		AgentCount:        1000,
		Seed:              1337,
		Steps:             500,
		Workers:           0,
		Rule:              RuleFlockers,
		InteractionRadius: flock.DefaultRadius,
		Jump:              flock.DefaultJump,
		RandomMagnitude:   flock.DefaultRandomMagnitude,
		Weights:           flock.DefaultWeights(),
		Normalization:     flock.NormalizationReference,
		Boids:             behavior.DefaultSettings(),
		LogLevel:          "info",
	}
}

// Domain returns the world geometry described by the config.
func (c *Config) Domain() space.Domain {
	return space.Domain{Width: c.WorldWidth, Height: c.WorldHeight, Wrap: c.Wraparound}
}

// Params returns the flocking rule parameters described by the config.
func (c *Config) Params() flock.Params {
	return flock.Params{
		Radius:          c.InteractionRadius,
		Jump:            c.Jump,
		RandomMagnitude: c.RandomMagnitude,
		Weights:         c.Weights,
		Normalization:   c.Normalization,
	}
}

// Validate checks the semantic constraints the schema cannot express and
// joins every problem found. Nothing is coerced.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Domain().Validate(); err != nil {
		errs = append(errs, err)
	}
	if math.IsNaN(c.BucketSize) || math.IsInf(c.BucketSize, 0) || c.BucketSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", space.ErrInvalidBucketSize, c.BucketSize))
	}
	if c.AgentCount <= 0 || uint64(c.AgentCount) > math.MaxUint32 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidAgentCount, c.AgentCount))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers))
	}
	if c.Steps < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidSteps, c.Steps))
	}
	if err := c.Params().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Rule {
	case "", RuleFlockers:
	case RuleBoids:
		if err := c.Boids.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownRule, c.Rule))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from a JSON or YAML file, validates it
// against the embedded schema and then against Validate. Fields missing from
// the file keep their DefaultConfig value.
func LoadConfig(configFile string) (*Config, error) {
	b, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		if b, err = yamlToJSON(b); err != nil {
			return nil, fmt.Errorf("failed to decode config yaml: %w", err)
		}
	}
	return ParseConfig(b)
}

// ParseConfig is LoadConfig for an in-memory JSON document.
func ParseConfig(b []byte) (*Config, error) {
	sch, err := jsonschema.CompileString("config.schema.json", configSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("failed to decode config json: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func yamlToJSON(b []byte) ([]byte, error) {
	var v interface{}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	if v == nil {
		v = map[string]interface{}{}
	}
	return json.Marshal(v)
}
