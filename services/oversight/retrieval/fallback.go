// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/aurora/services/oversight/datatypes"
)

// RegulatoryClauseClassName is the Weaviate class holding the
// secondary clause corpus.
const RegulatoryClauseClassName = "RegulatoryClause"

// ErrCircuitOpen is returned while the circuit breaker blocks fallback
// requests after repeated failures.
var ErrCircuitOpen = errors.New("fallback circuit breaker is open")

// WeaviateSourceConfig configures the Weaviate fallback source.
type WeaviateSourceConfig struct {
	// Host is the Weaviate host (e.g. "localhost:8080").
	Host string

	// Scheme is "http" or "https". Default: "http".
	Scheme string

	// RetryAttempts is the number of attempts per fetch. Default: 3.
	RetryAttempts int

	// RetryBackoff is the initial backoff between attempts.
	// Default: 100ms.
	RetryBackoff time.Duration

	// MaxRetryBackoff caps the exponential backoff. Default: 2s.
	MaxRetryBackoff time.Duration

	// RetryJitter adds randomness to backoff (0.0-1.0). Default: 0.25.
	// The zero value takes the default; a negative value disables
	// jitter.
	RetryJitter float64

	// CircuitThreshold is the number of consecutive failed fetches
	// before the circuit opens. Default: 5.
	CircuitThreshold int

	// CircuitCooldown is how long the circuit stays open. Default: 30s.
	CircuitCooldown time.Duration

	// Logger for source operations. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultWeaviateSourceConfig returns production defaults.
func DefaultWeaviateSourceConfig() WeaviateSourceConfig {
	return WeaviateSourceConfig{
		Scheme:           "http",
		RetryAttempts:    3,
		RetryBackoff:     100 * time.Millisecond,
		MaxRetryBackoff:  2 * time.Second,
		RetryJitter:      0.25,
		CircuitThreshold: 5,
		CircuitCooldown:  30 * time.Second,
		Logger:           slog.Default(),
	}
}

func (c *WeaviateSourceConfig) applyDefaults() {
	defaults := DefaultWeaviateSourceConfig()
	if c.Scheme == "" {
		c.Scheme = defaults.Scheme
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = defaults.CircuitThreshold
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = defaults.CircuitCooldown
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// Validate checks the configuration.
func (c *WeaviateSourceConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host must not be empty")
	}
	if c.RetryJitter > 1 {
		return errors.New("retry_jitter must not exceed 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("circuit_threshold must be at least 1")
	}
	return nil
}

// WeaviateSource is a FallbackSource backed by a secondary Weaviate
// clause corpus, with retry, jittered backoff, and a circuit breaker
// so a dead fallback cannot stall the batch.
//
// Thread Safety: safe for concurrent use.
type WeaviateSource struct {
	client *weaviate.Client
	config WeaviateSourceConfig

	mu           sync.Mutex
	failures     int
	openUntil    time.Time
	totalFetches int64
}

// NewWeaviateSource connects a fallback source to Weaviate.
func NewWeaviateSource(config WeaviateSourceConfig) (*WeaviateSource, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("weaviate source config: %w", err)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   config.Host,
		Scheme: config.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateSource{
		client: client,
		config: config,
	}, nil
}

// FetchCandidates implements FallbackSource.
//
// Description:
//
//	Runs a nearText query against the RegulatoryClause class and maps
//	the hits to clauses. Attempts are retried with exponential backoff
//	and jitter; after CircuitThreshold consecutive failed fetches the
//	circuit opens for CircuitCooldown and calls fail fast with
//	ErrCircuitOpen (wrapped in ErrFallbackUnavailable).
func (w *WeaviateSource) FetchCandidates(ctx context.Context, query string, limit int) ([]datatypes.Clause, error) {
	if limit <= 0 {
		limit = 5
	}

	if err := w.checkCircuit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFallbackUnavailable, err)
	}

	var lastErr error
	backoff := w.config.RetryBackoff

	for attempt := 0; attempt < w.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				w.recordFailure()
				return nil, fmt.Errorf("%w: %w", ErrFallbackUnavailable, ctx.Err())
			case <-time.After(jittered(backoff, w.config.RetryJitter)):
			}
			backoff *= 2
			if backoff > w.config.MaxRetryBackoff {
				backoff = w.config.MaxRetryBackoff
			}
		}

		clauses, err := w.fetchOnce(ctx, query, limit)
		if err == nil {
			w.recordSuccess()
			return clauses, nil
		}
		lastErr = err
		w.config.Logger.Warn("fallback fetch attempt failed",
			"attempt", attempt+1,
			"error", err)
	}

	w.recordFailure()
	return nil, fmt.Errorf("%w: %w", ErrFallbackUnavailable, lastErr)
}

// fetchOnce performs a single nearText query.
func (w *WeaviateSource) fetchOnce(ctx context.Context, query string, limit int) ([]datatypes.Clause, error) {
	nearText := w.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "clauseId"},
		{Name: "sourceAuthority"},
		{Name: "text"},
		{Name: "version"},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(RegulatoryClauseClassName).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate query: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query error: %s", result.Errors[0].Message)
	}

	return parseClauseHits(result.Data)
}

// parseClauseHits maps GraphQL response data to clauses. Hits missing
// a clauseId or text are skipped rather than failing the fetch.
func parseClauseHits(data map[string]models.JSONObject) ([]datatypes.Clause, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected response shape: missing Get")
	}
	items, ok := get[RegulatoryClauseClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	clauses := make([]datatypes.Clause, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["clauseId"].(string)
		text, _ := m["text"].(string)
		if id == "" || text == "" {
			continue
		}
		authority, _ := m["sourceAuthority"].(string)
		version, _ := m["version"].(string)
		clauses = append(clauses, datatypes.Clause{
			ClauseID:  id,
			Authority: datatypes.SourceAuthority(authority),
			Text:      text,
			Version:   version,
		})
	}
	return clauses, nil
}

// checkCircuit fails fast while the breaker is open.
func (w *WeaviateSource) checkCircuit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.openUntil.IsZero() && time.Now().Before(w.openUntil) {
		return ErrCircuitOpen
	}
	return nil
}

func (w *WeaviateSource) recordSuccess() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = 0
	w.openUntil = time.Time{}
	w.totalFetches++
}

func (w *WeaviateSource) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures++
	w.totalFetches++
	if w.failures >= w.config.CircuitThreshold {
		w.openUntil = time.Now().Add(w.config.CircuitCooldown)
		w.config.Logger.Warn("fallback circuit opened",
			"failures", w.failures,
			"cooldown", w.config.CircuitCooldown)
	}
}

// jittered applies +/- jitter to a backoff duration.
func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * jitter * float64(d)
	return d + time.Duration(delta)
}
