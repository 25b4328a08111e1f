package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDefinition = `# Quantitative

You are a quantitative analyst. Work from numbers, not narratives.

## Skills
- Financial statement analysis
- Ratio and trend computation

## Personality
- Precise
- Skeptical of projections

## Specialization
Hard financial data extraction and validation.

## Workflow
Always cite the reporting period for every figure.`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(sampleDefinition)
	require.NoError(t, err)

	assert.Equal(t, "Quantitative", p.Name)
	assert.Equal(t, []string{"Financial statement analysis", "Ratio and trend computation"}, p.Skills)
	assert.Equal(t, []string{"Precise", "Skeptical of projections"}, p.Personality)
	assert.Equal(t, "Hard financial data extraction and validation.", p.Specialization)

	// The full document is the system prompt, unknown sections included.
	assert.Contains(t, p.SystemPrompt(), "Always cite the reporting period")
}

func TestParseProfileRequiresName(t *testing.T) {
	_, err := ParseProfile("## Skills\n- Something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quant.md"), []byte(sampleDefinition), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qual.md"), []byte("# Qualitative\nAssess narratives."), 0o644))

	profiles, err := LoadProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Contains(t, profiles, "Quantitative")
	assert.Contains(t, profiles, "Qualitative")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
primary_model: z-ai/glm-4.5-air:free
model_overrides:
  Synthesis: anthropic/claude-sonnet
mode: fundamental
max_iterations: 3
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "z-ai/glm-4.5-air:free", cfg.ModelFor("Quantitative"))
	assert.Equal(t, "anthropic/claude-sonnet", cfg.ModelFor("Synthesis"))
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, 15, cfg.MaxToolCycles, "defaults survive partial files")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing model", func(c *Config) { c.PrimaryModel = "" }},
		{"zero cycles", func(c *Config) { c.MaxToolCycles = 0 }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"bad mode", func(c *Config) { c.Mode = "turbo" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.PrimaryModel = "some/model"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
