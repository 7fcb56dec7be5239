package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"sqlpilot/internal/alter"
	"sqlpilot/internal/cache"
	"sqlpilot/internal/config"
	"sqlpilot/internal/embedding"
	"sqlpilot/internal/executor"
	"sqlpilot/internal/genloop"
	"sqlpilot/internal/index"
	"sqlpilot/internal/intent"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/pipeline"
	"sqlpilot/internal/ranker"
	"sqlpilot/internal/resolver"
	"sqlpilot/internal/sqlgen"
)

// app holds the assembled pipeline and the resources it owns.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	index    *index.Index
	cacheDB  *cache.SQLite
	pipeline *pipeline.Pipeline
	lines    *lineReader
}

// openCache opens the durable memoization store.
func openCache(path string) (*cache.SQLite, error) {
	return cache.OpenSQLite(path)
}

// buildApp loads configuration and assembles the full pipeline.
// Configuration failures surface here, before any stage runs.
func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	idx, err := index.New(cfg.Index.Path, engine, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	var memoStore cache.Cache
	var cacheDB *cache.SQLite
	if cfg.Cache.Path != "" {
		cacheDB, err = openCache(cfg.Cache.Path)
		if err != nil {
			idx.Close()
			db.Close()
			return nil, err
		}
		memoStore = cacheDB
	} else {
		memoStore = cache.NewMemory()
	}
	memo := cache.NewMemo(memoStore)

	policy := llm.RetryPolicy{
		InitialDelay: cfg.RetryInitialDelay(),
		MaxDelay:     cfg.RetryMaxDelay(),
		Multiplier:   cfg.Retry.Multiplier,
		Deadline:     cfg.RetryDeadline(),
	}

	newClient := func(model string) llm.Client {
		return llm.NewGeminiClient(llm.GeminiConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   model,
			Timeout: cfg.LLMTimeout(),
		}, logger)
	}

	analyzer := intent.New(newClient(cfg.LLM.IntentModel), memo, policy, logger)
	rk := ranker.New(idx, cfg.Index.TopK, cfg.Index.ConfidenceFloor, logger)
	alterer := alter.New(db, idx, logger)
	lines := newLineReader(os.Stdin)
	escalator := newConsoleEscalator(lines)
	res := resolver.New(idx, rk, escalator, alterer, cfg.EscalationTimeout(), logger)

	gen := sqlgen.NewGenerator(newClient(cfg.LLM.GeneratorModel), memo, policy, logger)
	ver := sqlgen.NewVerifier(newClient(cfg.LLM.VerifierModel), policy, logger)
	run := executor.New(db, logger)
	loop := genloop.New(gen, ver, run, cfg.Generation.MaxRetries, cfg.Generation.BudgetIncrement, logger)

	pipe := pipeline.New(analyzer, res, loop, cfg.Generation.InitialTokenBudget, logger)

	return &app{
		cfg:      cfg,
		db:       db,
		index:    idx,
		cacheDB:  cacheDB,
		pipeline: pipe,
		lines:    lines,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if a.cacheDB != nil {
		a.cacheDB.Close()
	}
	if a.index != nil {
		a.index.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
