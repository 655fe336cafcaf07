package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/late7/ai-doc-reader/internal/analyze"
	"github.com/late7/ai-doc-reader/internal/docs"
	"github.com/late7/ai-doc-reader/internal/prompt"
	"github.com/late7/ai-doc-reader/internal/registry"
	"github.com/late7/ai-doc-reader/internal/store"
	anthropicpkg "github.com/late7/ai-doc-reader/pkg/anthropic"
	"github.com/late7/ai-doc-reader/pkg/workspace"
)

// appEnv holds the store, registries and clients shared by the serve,
// analyze, figures and questions commands.
type appEnv struct {
	Store    store.Store
	Registry *registry.Registry
	Runner   *analyze.Runner
	Docs     *docs.Manager
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ai-doc-reader.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, registries and backend clients. Callers should
// defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := registry.New(st)

	wsClient := workspace.NewClient(cfg.Workspace.BaseURL, cfg.Workspace.Key)
	llmClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	if cfg.Anthropic.Key == "" {
		zap.L().Warn("AIDOC_ANTHROPIC_KEY not set, direct-upload backend disabled")
	}

	var limiter *rate.Limiter
	if cfg.Analysis.QuestionsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.Analysis.QuestionsPerMinute)/60.0), 1)
	}

	runner := &analyze.Runner{
		Store:        st,
		Registry:     reg,
		Workspace:    wsClient,
		LLM:          llmClient,
		Generator:    prompt.NewGenerator(),
		Model:        cfg.Anthropic.Model,
		MaxTokens:    cfg.Anthropic.MaxTokens,
		QuestionRate: limiter,
	}

	manager := &docs.Manager{
		Store:     st,
		Workspace: wsClient,
		Dir:       cfg.Uploads.Dir,
	}

	return &appEnv{
		Store:    st,
		Registry: reg,
		Runner:   runner,
		Docs:     manager,
	}, nil
}

// seedRegistries loads the configured seed file into empty registries.
// Missing configuration is not an error; serve works against whatever the
// store already holds.
func seedRegistries(ctx context.Context, env *appEnv) error {
	if cfg.Analysis.SeedFile == "" {
		return nil
	}
	figures, questions, err := registry.LoadSeedFile(cfg.Analysis.SeedFile)
	if err != nil {
		return eris.Wrap(err, "load seed file")
	}
	if err := env.Registry.Seed(ctx, figures, questions); err != nil {
		return eris.Wrap(err, "seed registries")
	}
	zap.L().Info("registries seeded",
		zap.String("file", cfg.Analysis.SeedFile),
		zap.Int("figures", len(figures)),
		zap.Int("questions", len(questions)),
	)
	return nil
}
