package simulation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lao-tseu-is-alive/go-flock-step/pkg/behavior"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/flock"
	"github.com/lao-tseu-is-alive/go-flock-step/pkg/space"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"zero width", func(c *Config) { c.WorldWidth = 0 }, space.ErrInvalidDomain},
		{"negative height", func(c *Config) { c.WorldHeight = -5 }, space.ErrInvalidDomain},
		{"zero bucket", func(c *Config) { c.BucketSize = 0 }, space.ErrInvalidBucketSize},
		{"negative agent count", func(c *Config) { c.AgentCount = -1 }, ErrInvalidAgentCount},
		{"zero agent count", func(c *Config) { c.AgentCount = 0 }, ErrInvalidAgentCount},
		{"negative workers", func(c *Config) { c.Workers = -2 }, ErrInvalidWorkers},
		{"negative steps", func(c *Config) { c.Steps = -1 }, ErrInvalidSteps},
		{"negative radius", func(c *Config) { c.InteractionRadius = -1 }, flock.ErrInvalidRadius},
		{"zero jump", func(c *Config) { c.Jump = 0 }, flock.ErrInvalidJump},
		{"unknown normalization", func(c *Config) { c.Normalization = "triple" }, flock.ErrInvalidNormalization},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, ErrInvalidLogLevel},
		{"unknown rule", func(c *Config) { c.Rule = "vicsek" }, ErrUnknownRule},
		{"boids min above max", func(c *Config) {
			c.Rule = RuleBoids
			c.Boids.MinSpeed = 5
		}, behavior.ErrInvalidSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateJoinsEveryProblem(t *testing.T) {
	c := DefaultConfig()
	c.WorldWidth = 0
	c.AgentCount = -1
	c.Jump = -1

	err := c.Validate()
	assert.ErrorIs(t, err, space.ErrInvalidDomain)
	assert.ErrorIs(t, err, ErrInvalidAgentCount)
	assert.ErrorIs(t, err, flock.ErrInvalidJump)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "flock.json", `{
		"worldWidth": 100,
		"worldHeight": 80,
		"wraparound": false,
		"agentCount": 3,
		"seed": 1337,
		"weights": {"cohesion": 0.5}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.WorldWidth)
	assert.Equal(t, 80.0, cfg.WorldHeight)
	assert.False(t, cfg.Wraparound)
	assert.Equal(t, 3, cfg.AgentCount)
	assert.Equal(t, uint64(1337), cfg.Seed)
	assert.Equal(t, 0.5, cfg.Weights.Cohesion)
	// untouched fields keep their defaults
	assert.Equal(t, flock.DefaultWeights().Avoidance, cfg.Weights.Avoidance)
	assert.Equal(t, flock.DefaultJump, cfg.Jump)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "flock.yaml", `
worldWidth: 100
worldHeight: 100
wraparound: true
bucketSize: 10
agentCount: 50
seed: 42
workers: 4
interactionRadius: 10
jump: 0.7
normalization: single
weights:
  cohesion: 0.8
  avoidance: 1.0
  consistency: 0.7
  randomness: 1.1
  momentum: 1.0
logLevel: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.AgentCount)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, flock.NormalizationSingle, cfg.Normalization)
	assert.Equal(t, flock.DefaultWeights(), cfg.Weights)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_BoidsRule(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"rule": "boids", "boids": {"maxSpeed": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, RuleBoids, cfg.Rule)
	assert.Equal(t, 3.0, cfg.Boids.MaxSpeed)
	assert.Equal(t, behavior.DefaultSettings().VisualRange, cfg.Boids.VisualRange)
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"worldWidth": 100, "numRedAtStart": 5}`},
		{"wrong type", `{"agentCount": "many"}`},
		{"fractional count", `{"agentCount": 2.5}`},
		{"zero count", `{"agentCount": 0}`},
		{"zero jump", `{"jump": 0}`},
		{"unknown weight", `{"weights": {"greed": 1}}`},
		{"bad normalization", `{"normalization": "twice"}`},
		{"bad rule", `{"rule": "vicsek"}`},
		{"unknown boids setting", `{"boids": {"fear": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestLoadConfig_SemanticErrors(t *testing.T) {
	// valid for the schema, but agent ids are 32-bit
	_, err := ParseConfig([]byte(`{"logLevel": "warning", "agentCount": 4294967296}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAgentCount)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_BrokenYAML(t *testing.T) {
	path := writeFile(t, "broken.yml", "worldWidth: [1, 2\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config yaml")
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"", "info", "debug", "warn", "warning", "error", "DEBUG"} {
		_, err := ParseLogLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseLogLevel("trace")
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
}
