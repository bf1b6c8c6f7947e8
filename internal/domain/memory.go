package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Memory is an in-memory Collaborator used for local development and
// tests. The production deployment wires the real CRUD service here.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]map[EntityType]map[string]map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		entities: make(map[string]map[EntityType]map[string]map[string]any),
	}
}

var _ Collaborator = (*Memory)(nil)

func (m *Memory) bucket(tenantID string, entity EntityType) map[string]map[string]any {
	tenant, ok := m.entities[tenantID]
	if !ok {
		tenant = make(map[EntityType]map[string]map[string]any)
		m.entities[tenantID] = tenant
	}
	kind, ok := tenant[entity]
	if !ok {
		kind = make(map[string]map[string]any)
		tenant[entity] = kind
	}
	return kind
}

func (m *Memory) Create(ctx context.Context, tenantID string, entity EntityType, attrs json.RawMessage) Result {
	if !entity.Known() {
		return Fail(fmt.Sprintf("unknown entity type %q", entity))
	}

	record := map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &record); err != nil {
			return Fail("invalid attributes: " + err.Error())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := ulid.Make().String()
	record["id"] = id
	m.bucket(tenantID, entity)[id] = record
	return OK(record)
}

func (m *Memory) Update(ctx context.Context, tenantID string, entity EntityType, id string, attrs json.RawMessage) Result {
	if !entity.Known() {
		return Fail(fmt.Sprintf("unknown entity type %q", entity))
	}

	patch := map[string]any{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &patch); err != nil {
			return Fail("invalid attributes: " + err.Error())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.bucket(tenantID, entity)[id]
	if !ok {
		return Fail(fmt.Sprintf("%s %s not found", entity, id))
	}
	for k, v := range patch {
		if k == "id" {
			continue
		}
		record[k] = v
	}
	return OK(record)
}

func (m *Memory) Delete(ctx context.Context, tenantID string, entity EntityType, id string) Result {
	if !entity.Known() {
		return Fail(fmt.Sprintf("unknown entity type %q", entity))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.bucket(tenantID, entity)
	if _, ok := bucket[id]; !ok {
		return Fail(fmt.Sprintf("%s %s not found", entity, id))
	}
	delete(bucket, id)
	return OK(map[string]any{"id": id, "deleted": true})
}

// peek is the non-mutating lookup used by read paths.
func (m *Memory) peek(tenantID string, entity EntityType) map[string]map[string]any {
	if tenant, ok := m.entities[tenantID]; ok {
		return tenant[entity]
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, tenantID string, entity EntityType, id string) Result {
	if !entity.Known() {
		return Fail(fmt.Sprintf("unknown entity type %q", entity))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.peek(tenantID, entity)[id]
	if !ok {
		return Fail(fmt.Sprintf("%s %s not found", entity, id))
	}
	return OK(record)
}

func (m *Memory) List(ctx context.Context, tenantID string, entity EntityType) Result {
	if !entity.Known() {
		return Fail(fmt.Sprintf("unknown entity type %q", entity))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.peek(tenantID, entity)
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		records = append(records, bucket[id])
	}
	return OK(records)
}

// Count returns the number of entities of one kind for a tenant.
func (m *Memory) Count(tenantID string, entity EntityType) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peek(tenantID, entity))
}
