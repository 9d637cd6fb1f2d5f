package main

import (
	"context"
	"fmt"
	"log"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/cache"
	"github.com/oedrhq/engine/internal/fetch"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/orchestrator"
	"github.com/oedrhq/engine/internal/search"
	"github.com/oedrhq/engine/internal/store"
	"github.com/oedrhq/engine/internal/telemetry"
)

// bootstrap wires every collaborator an Orchestrator needs out of a
// loaded Config. runIndex is nil (not an error) when Postgres is
// unconfigured -- the journal alone remains authoritative for resume.
// claims is cache.NoopHashClaims when Redis is unconfigured or unreachable;
// callers that need the underlying Redis connection for other purposes
// (the status server's event-mirror reads) type-assert it to
// *cache.RedisHashClaims themselves.
func bootstrap(cfg *config.Config) (*orchestrator.Orchestrator, *store.Store, cache.HashClaims, error) {
	llmClient := llm.New(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Backoff:     cfg.LLM.Backoff,
	})

	searchP, err := search.New(search.Name(cfg.Search.Provider), cfg.Search.APIKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("construct search provider: %w", err)
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxChars:     cfg.Fetch.MaxChars,
		MinBodyChars: cfg.Fetch.MinBodyChars,
	})

	tel := telemetry.New(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	var runIndex *store.Store
	if cfg.Storage.Postgres.URL != "" {
		runIndex, err = store.Open(cfg.Storage.Postgres.URL)
		if err != nil {
			log.Printf("postgres run index unavailable, continuing journal-only: %v", err)
			runIndex = nil
		}
	}

	var claims cache.HashClaims = cache.NoopHashClaims{}
	if cfg.Storage.Redis.Addr != "" {
		redisClaims, err := cache.Connect(context.Background(), cache.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err != nil {
			log.Printf("redis hash-claim cache unavailable, falling back to in-process dedup: %v", err)
		} else {
			claims = redisClaims
		}
	}

	orch := orchestrator.New(llmClient, searchP, fetcher, tel, runIndex, claims, cfg)
	return orch, runIndex, claims, nil
}
