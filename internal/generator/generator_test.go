package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsReproducible(t *testing.T) {
	first, err := Generate(DefaultConfig())
	require.NoError(t, err)
	second, err := Generate(DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateShape(t *testing.T) {
	config := DefaultConfig()
	config.Count = 50
	config.ExtraBooks = 5
	config.MatchRatio = 1.0
	config.InvalidRatio = 0

	dataset, err := Generate(config)
	require.NoError(t, err)

	assert.Len(t, dataset.Statements, 50)
	assert.Len(t, dataset.Books, 55)
	assert.Len(t, dataset.Counterparts, 50)

	books := make(map[string]bool, len(dataset.Books))
	for _, b := range dataset.Books {
		assert.False(t, books[b.ID], "duplicate book id %s", b.ID)
		books[b.ID] = true
		assert.NotEmpty(t, b.SourceID)
	}
	for stmtID, bookID := range dataset.Counterparts {
		assert.True(t, books[bookID], "counterpart of %s missing", stmtID)
	}
	for _, s := range dataset.Statements {
		assert.NotEqual(t, "N/A", s.Amount)
	}
}

func TestGenerateSeedChangesData(t *testing.T) {
	config := DefaultConfig()
	first, err := Generate(config)
	require.NoError(t, err)

	config.Seed = 2
	second, err := Generate(config)
	require.NoError(t, err)

	assert.NotEqual(t, first.Statements, second.Statements)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative count", func(c *Config) { c.Count = -1 }},
		{"zero days", func(c *Config) { c.Days = 0 }},
		{"inverted amounts", func(c *Config) { c.MaxAmount = c.MinAmount.Sub(c.MinAmount).Sub(c.MinAmount) }},
		{"ratio above one", func(c *Config) { c.MatchRatio = 1.5 }},
		{"negative ratio", func(c *Config) { c.InvalidRatio = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			assert.Error(t, config.Validate())

			_, err := Generate(config)
			assert.Error(t, err)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}
