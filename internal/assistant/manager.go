// Package assistant resolves "the assistant for tenant T" idempotently:
// in-process cache first, then the two tracking stores verified against
// the provider, and only when no valid id can be proven a remote create.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/featly/featly/internal/config"
	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/store"
)

type Manager struct {
	client provider.Client
	refs   *store.References
	cache  *Cache

	reverifyAge  time.Duration
	instructions string
	functions    []provider.FunctionDefinition
}

func NewManager(client provider.Client, st *store.Store, cfg config.AssistantConfig, functions []provider.FunctionDefinition) (*Manager, error) {
	ttl, err := config.DurationOrDefault(cfg.CacheTTL, config.DefaultAssistantCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("parse assistant cache ttl: %w", err)
	}
	reverifyAge, err := config.DurationOrDefault(cfg.ReverifyAge, config.DefaultAssistantReverifyAge)
	if err != nil {
		return nil, fmt.Errorf("parse assistant reverify age: %w", err)
	}

	instructions := cfg.Instructions
	if instructions == "" {
		instructions = config.DefaultAssistantInstructions
	}

	return &Manager{
		client:       client,
		refs:         store.NewReferences(st),
		cache:        NewCache(ttl),
		reverifyAge:  reverifyAge,
		instructions: instructions,
		functions:    functions,
	}, nil
}

// Resolve returns the tenant's assistant id, creating a remote assistant
// only when no recorded id can be verified. Concurrent callers may race
// through creation; the reconciler collapses duplicates afterwards, so
// no lock is taken here.
func (m *Manager) Resolve(ctx context.Context, tenantID string) (string, error) {
	if id, age, ok := m.cache.Get(tenantID); ok {
		if age < m.reverifyAge {
			return id, nil
		}
		// Periodic cheap re-validation instead of trusting the cache
		// for its whole TTL.
		if _, err := m.client.RetrieveAssistant(ctx, id); err == nil {
			m.cache.Put(tenantID, id)
			return id, nil
		}
		m.cache.Invalidate(tenantID)
	}

	ref, err := m.refs.Read(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if candidate := candidateFrom(ref); candidate != "" {
		_, err := m.client.RetrieveAssistant(ctx, candidate)
		switch {
		case err == nil:
			if !ref.Agreed() {
				if err := m.refs.WriteThrough(ctx, tenantID, candidate); err != nil {
					return "", err
				}
				slog.Info("Assistant reference repaired on read", "tenant", tenantID, "assistant", candidate)
			}
			m.cache.Put(tenantID, candidate)
			return candidate, nil
		case errors.Is(err, featlyErrors.ErrConfiguration):
			return "", err
		case errors.Is(err, featlyErrors.ErrNotFound):
			slog.Warn("Recorded assistant no longer exists, recreating", "tenant", tenantID, "assistant", candidate)
		default:
			// Transient verification failure: conservatively treat the
			// id as unproven. The extra creation this can cause is
			// repaired by the reconciler.
			slog.Warn("Assistant verification failed, treating as absent", "tenant", tenantID, "assistant", candidate, "error", err)
		}
	}

	return m.create(ctx, tenantID)
}

// candidateFrom picks the id worth verifying. Two stores naming
// different assistants prove nothing, so that case resolves as absent
// and the reconciler converges the leftovers.
func candidateFrom(ref store.Reference) string {
	switch {
	case ref.Agreed():
		return ref.SystemA
	case ref.SystemA != "" && ref.SystemB == "":
		return ref.SystemA
	case ref.SystemB != "" && ref.SystemA == "":
		return ref.SystemB
	}
	return ""
}

func (m *Manager) create(ctx context.Context, tenantID string) (string, error) {
	created, err := m.client.CreateAssistant(ctx, provider.AssistantSpec{
		Name:         "featly-" + tenantID,
		Instructions: m.instructions,
		Functions:    m.functions,
	})
	if err != nil {
		return "", err
	}

	// Both stores in one logical step. Not atomic across stores: a
	// partial write here is repaired by the next reconciliation pass.
	if err := m.refs.WriteThrough(ctx, tenantID, created.ID); err != nil {
		return "", err
	}

	m.cache.Put(tenantID, created.ID)
	slog.Info("Assistant created", "tenant", tenantID, "assistant", created.ID)
	return created.ID, nil
}

// Invalidate drops the cached id for one tenant.
func (m *Manager) Invalidate(tenantID string) {
	m.cache.Invalidate(tenantID)
}

// InvalidateAll drops every cached id; the reconciler calls this after repair.
func (m *Manager) InvalidateAll() {
	m.cache.InvalidateAll()
}
