package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/adaptiverag/agent"
	"github.com/smallnest/adaptiverag/config"
	"github.com/smallnest/adaptiverag/llm"
	"github.com/smallnest/adaptiverag/rag"
	"github.com/smallnest/adaptiverag/rag/ingest"
	vectorstore "github.com/smallnest/adaptiverag/rag/store"
	"github.com/smallnest/adaptiverag/store"
	"github.com/smallnest/adaptiverag/store/memory"
	pgstore "github.com/smallnest/adaptiverag/store/postgres"
	redisstore "github.com/smallnest/adaptiverag/store/redis"
	sqlitestore "github.com/smallnest/adaptiverag/store/sqlite"
	"github.com/smallnest/adaptiverag/tool"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// app holds everything a subcommand may need. Fields are nil when the
// command did not ask for them.
type app struct {
	cfg      *config.Config
	vectors  rag.VectorStore
	embedder rag.Embedder
	indexer  *ingest.Indexer
	threads  store.ThreadStore
	agent    *agent.Agent

	// gemini serves both embeddings and chat when the provider is googleai.
	gemini *googleai.GoogleAI
}

func (a *app) Close() {
	if a.threads != nil {
		a.threads.Close()
	}
	if a.vectors != nil {
		a.vectors.Close()
	}
	if a.gemini != nil {
		a.gemini.Close()
	}
}

// openKnowledgeBase opens the persistent collection and the embedder of the
// configured provider.
func openKnowledgeBase(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.ValidateProvider(); err != nil {
		return nil, err
	}
	vectors, err := vectorstore.NewSQLiteVectorStore(ctx, vectorstore.SQLiteOptions{Path: cfg.IndexPath})
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", cfg.IndexPath, err)
	}
	a := &app{cfg: cfg, vectors: vectors}

	switch cfg.LLMProvider {
	case config.ProviderGoogleAI:
		a.gemini, err = llm.NewGoogleAIModel(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.embedder, err = rag.NewGoogleAIEmbedder(a.gemini)
		if err != nil {
			a.Close()
			return nil, err
		}
	default:
		a.embedder = rag.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbedModel)
	}
	a.indexer = ingest.NewIndexer(a.embedder, vectors, cfg.ChunkSize, cfg.ChunkOverlap)
	return a, nil
}

// chatModel returns the chat model of the configured provider, reusing the
// Gemini client opened for embeddings.
func (a *app) chatModel() (llms.Model, error) {
	if a.gemini != nil {
		return a.gemini, nil
	}
	m, err := llm.NewOpenAIModel(a.cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// openAgent wires the full conversation stack from cfg.
func openAgent(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := openKnowledgeBase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	model, err := a.chatModel()
	if err != nil {
		a.Close()
		return nil, err
	}
	threads, err := openThreadStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.threads = threads

	a.agent, err = agent.New(llm.NewLangChainCompleter(model),
		agent.WithRetriever(rag.NewRetriever(a.embedder, a.vectors, cfg.TopK)),
		agent.WithWebSearch(webSearcher(cfg)),
		agent.WithThreadStore(threads),
		agent.WithTemperatures(cfg.RouterTemperature, cfg.AnswerTemperature),
		agent.WithSearchMaxResults(cfg.SearchMaxResults),
		agent.WithTurnTimeout(cfg.TurnTimeout),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openThreadStore returns the backend selected by cfg.ThreadStore.
func openThreadStore(ctx context.Context, cfg *config.Config) (store.ThreadStore, error) {
	switch cfg.ThreadStore {
	case config.ThreadStoreMemory, "":
		return memory.NewThreadStore(), nil
	case config.ThreadStoreSQLite:
		s, err := sqlitestore.NewThreadStore(sqlitestore.SqliteOptions{Path: cfg.IndexPath})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ThreadStoreRedis:
		return redisstore.NewThreadStore(redisstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}), nil
	case config.ThreadStorePostgres:
		s, err := pgstore.NewThreadStore(ctx, pgstore.PostgresOptions{ConnString: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown thread store %q", config.ErrConfiguration, cfg.ThreadStore)
}

// webSearcher defers client construction to the first search so a missing
// key surfaces only on turns that actually need the web.
func webSearcher(cfg *config.Config) tool.WebSearcher {
	return tool.NewLazySearcher(func() (tool.WebSearcher, error) {
		switch cfg.SearchProvider {
		case config.SearchBrave:
			b, err := tool.NewBraveSearch(cfg.BraveKey, tool.WithBraveCount(cfg.SearchMaxResults))
			if err != nil {
				return nil, err
			}
			return b, nil
		case config.SearchTavily:
			t, err := tool.NewTavilySearch(cfg.TavilyKey, tool.WithTavilyMaxResults(cfg.SearchMaxResults))
			if err != nil {
				return nil, err
			}
			return t, nil
		}
		return nil, fmt.Errorf("%w: unknown search provider %q", config.ErrConfiguration, cfg.SearchProvider)
	})
}

// toolRegistry registers every tool whose prerequisites are configured.
// The calculator needs nothing; the knowledge base needs the provider key.
func toolRegistry(ctx context.Context, cfg *config.Config) (*tool.Registry, func(), error) {
	reg := tool.NewRegistry(tool.NewCalculator())
	closeFn := func() {}

	if cfg.ValidateProvider() == nil {
		kb, err := openKnowledgeBase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		reg.Register(tool.NewKnowledgeBase(rag.NewRetriever(kb.embedder, kb.vectors, cfg.TopK)))
		closeFn = kb.Close
	}
	switch cfg.SearchProvider {
	case config.SearchTavily:
		if t, err := tool.NewTavilySearch(cfg.TavilyKey, tool.WithTavilyMaxResults(cfg.SearchMaxResults)); err == nil {
			reg.Register(t)
		}
	case config.SearchBrave:
		if b, err := tool.NewBraveSearch(cfg.BraveKey, tool.WithBraveCount(cfg.SearchMaxResults)); err == nil {
			reg.Register(b)
		}
	}
	return reg, closeFn, nil
}

// isConfigError reports whether err should be shown as a setup problem.
func isConfigError(err error) bool {
	return errors.Is(err, config.ErrConfiguration)
}
