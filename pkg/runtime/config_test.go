package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianlabs/mindcore-go/pkg/runtime"
)

func TestValidate(t *testing.T) {
	cfg := testConfig()
	assert.NoError(t, cfg.Validate())

	cfg = testConfig()
	cfg.LLM.Provider = ""
	assert.ErrorIs(t, cfg.Validate(), runtime.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Embedder.Provider = ""
	assert.ErrorIs(t, cfg.Validate(), runtime.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Journal.Provider = ""
	assert.ErrorIs(t, cfg.Validate(), runtime.ErrInvalidConfig)

	cfg = testConfig()
	cfg.CallTimeout = -time.Second
	assert.ErrorIs(t, cfg.Validate(), runtime.ErrInvalidConfig)
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("JOURNAL_PROVIDER", "")
	t.Setenv("GUARDIANS", "")
	t.Setenv("CALL_TIMEOUT_SECONDS", "")

	cfg, err := runtime.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "hash", cfg.Embedder.Provider)
	assert.Equal(t, "memory", cfg.Journal.Provider)
	assert.Empty(t, cfg.Guardians)
	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnvOllama(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	cfg, err := runtime.LoadConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.1", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
}

func TestLoadConfigFromEnvRoster(t *testing.T) {
	t.Setenv("GUARDIANS", "gabriel, michael , uriel")

	cfg, err := runtime.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"gabriel", "michael", "uriel"}, cfg.Guardians)
}

func TestLoadConfigFromEnvJournalSettings(t *testing.T) {
	t.Setenv("JOURNAL_PROVIDER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/guardians.db")

	cfg, err := runtime.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Journal.Provider)
	assert.Equal(t, "/tmp/guardians.db", cfg.Journal.SQLitePath)
}

func TestScoreImportanceBounds(t *testing.T) {
	provider := &replyLLM{reply: "ok"}
	rt := newTestRuntime(t, provider)
	defer rt.Close()

	// A message stacked with urgent keywords still lands within the scale.
	ctx := context.Background()
	_, err := rt.HandleTurn(ctx, "gabriel", "user123",
		"Urgent! Emergency! Danger! Help! This is important and critical, remember the warning, I'm afraid, scared, hurt, and it's a secret!",
		false)
	require.NoError(t, err)

	records, err := rt.Store().Recent(ctx, "gabriel", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 10.0, records[1].Importance)
}
