package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "spoke-graph/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NEO4J_URI", "")
	t.Setenv("QA_MAX_ATTEMPTS", "")
	t.Setenv("LOAD_LIMIT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4jURI)
	assert.Equal(t, 3, cfg.QAMaxAttempts)
	assert.Equal(t, -1, cfg.LoadLimit)
	assert.Equal(t, 10*time.Second, cfg.Neo4jTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NEO4J_DATABASE", "spoke23_human")
	t.Setenv("LOAD_LIMIT", "500")
	t.Setenv("CACHE_TTL", "15m")
	t.Setenv("LLM_TEMPERATURE", "0.2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "spoke23_human", cfg.Neo4jDatabase)
	assert.Equal(t, 500, cfg.LoadLimit)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-6)
}

func TestValidate(t *testing.T) {
	base := Config{
		Neo4jURI:      "bolt://localhost:7687",
		Neo4jUser:     "neo4j",
		Neo4jPassword: "secret",
		LLMURL:        "http://localhost:4000",
		ModelID:       "gpt-4o",
		QAMaxAttempts: 3,
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing uri", func(t *testing.T) {
		cfg := base
		cfg.Neo4jURI = ""
		err := cfg.Validate()
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
	})

	t.Run("zero attempts", func(t *testing.T) {
		cfg := base
		cfg.QAMaxAttempts = 0
		var vErr *apperrors.ErrConfigValidationFailed
		assert.ErrorAs(t, cfg.Validate(), &vErr)
		assert.Equal(t, "QA_MAX_ATTEMPTS", vErr.Field)
	})
}
