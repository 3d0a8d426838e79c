package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/adaptiverag/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"ADAPTIVERAG_LLM_PROVIDER", "GOOGLE_API_KEY",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "ADAPTIVERAG_CHAT_MODEL", "ADAPTIVERAG_EMBED_MODEL",
	"ADAPTIVERAG_ROUTER_TEMPERATURE", "ADAPTIVERAG_ANSWER_TEMPERATURE", "ADAPTIVERAG_SEARCH_PROVIDER",
	"TAVILY_API_KEY", "BRAVE_API_KEY", "ADAPTIVERAG_SEARCH_MAX_RESULTS", "ADAPTIVERAG_TOP_K",
	"ADAPTIVERAG_CHUNK_SIZE", "ADAPTIVERAG_CHUNK_OVERLAP", "ADAPTIVERAG_SOURCE_DIR",
	"ADAPTIVERAG_INDEX_PATH", "ADAPTIVERAG_THREAD_STORE", "REDIS_ADDR", "REDIS_PASSWORD",
	"POSTGRES_DSN", "ADAPTIVERAG_TURN_TIMEOUT", "ADAPTIVERAG_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "gpt-4.1-mini", cfg.ChatModel)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbedModel)
	assert.Equal(t, 0.0, cfg.RouterTemperature)
	assert.Equal(t, 0.7, cfg.AnswerTemperature)
	assert.Equal(t, SearchTavily, cfg.SearchProvider)
	assert.Equal(t, 3, cfg.SearchMaxResults)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, "docs", cfg.SourceDir)
	assert.Equal(t, ThreadStoreMemory, cfg.ThreadStore)
	assert.Equal(t, 60*time.Second, cfg.TurnTimeout)
	assert.Equal(t, log.LogLevelInfo, cfg.LogLevel)
}

func TestFromEnv_MalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADAPTIVERAG_TOP_K", "three")
	t.Setenv("ADAPTIVERAG_TURN_TIMEOUT", "soon")

	_, err := FromEnv()
	require.ErrorIs(t, err, ErrConfiguration)

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, cerr.Problems, 2)
}

func TestFromEnv_OverlapMustBeSmaller(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADAPTIVERAG_CHUNK_SIZE", "100")
	t.Setenv("ADAPTIVERAG_CHUNK_OVERLAP", "100")

	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate_ListsEveryMissingKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADAPTIVERAG_THREAD_STORE", "postgres")

	cfg, err := FromEnv()
	require.NoError(t, err)

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "TAVILY_API_KEY")
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestValidate_BraveProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ADAPTIVERAG_SEARCH_PROVIDER", "Brave")
	t.Setenv("BRAVE_API_KEY", "brave-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_GoogleAIDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADAPTIVERAG_LLM_PROVIDER", "GoogleAI")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogleAI, cfg.LLMProvider)
	assert.Equal(t, "gemini-2.5-flash", cfg.ChatModel)
	assert.Equal(t, "gemini-embedding-001", cfg.EmbedModel)
	assert.Equal(t, "g-key", cfg.GoogleAPIKey)
	assert.NoError(t, cfg.ValidateProvider())

	t.Setenv("ADAPTIVERAG_EMBED_MODEL", "text-embedding-004")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
}

func TestValidateProvider(t *testing.T) {
	cases := map[string]struct {
		cfg  Config
		want string
	}{
		"openai without key":   {Config{LLMProvider: ProviderOpenAI}, "OPENAI_API_KEY"},
		"googleai without key": {Config{LLMProvider: ProviderGoogleAI, OpenAIKey: "sk-test"}, "GOOGLE_API_KEY"},
		"unknown provider":     {Config{LLMProvider: "anthropic"}, `unknown llm provider "anthropic"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.cfg.ValidateProvider()
			require.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	ok := Config{LLMProvider: ProviderGoogleAI, GoogleAPIKey: "g-key"}
	assert.NoError(t, ok.ValidateProvider())
}

func TestValidate_GoogleAIDoesNotNeedOpenAIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADAPTIVERAG_LLM_PROVIDER", ProviderGoogleAI)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("TAVILY_API_KEY", "tvly-key")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("ADAPTIVERAG_TOP_K")
	t.Cleanup(func() {
		os.Unsetenv("OPENAI_API_KEY")
		os.Unsetenv("ADAPTIVERAG_TOP_K")
	})
	t.Setenv("ADAPTIVERAG_CHAT_MODEL", "from-env")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"OPENAI_API_KEY=sk-dotenv\nADAPTIVERAG_TOP_K=5\nADAPTIVERAG_CHAT_MODEL=from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-dotenv", cfg.OpenAIKey)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, "from-env", cfg.ChatModel)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TopK)
}
