// Package domain is the boundary to the product-management CRUD layer.
// The orchestration core only ever calls through Collaborator; it never
// touches that layer's storage directly.
package domain

import (
	"context"
	"encoding/json"
)

type EntityType string

const (
	EntityProduct     EntityType = "product"
	EntityFeature     EntityType = "feature"
	EntityRequirement EntityType = "requirement"
	EntityRelease     EntityType = "release"
	EntityRoadmap     EntityType = "roadmap"
)

// Known reports whether the entity type is one the CRUD layer manages.
func (e EntityType) Known() bool {
	switch e {
	case EntityProduct, EntityFeature, EntityRequirement, EntityRelease, EntityRoadmap:
		return true
	}
	return false
}

// Result is the CRUD layer's response envelope.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func OK(data any) Result {
	encoded, err := json.Marshal(data)
	if err != nil {
		return Fail("encode result: " + err.Error())
	}
	return Result{Success: true, Data: encoded}
}

func Fail(message string) Result {
	return Result{Success: false, Error: message}
}

// Collaborator is the domain CRUD contract consumed by the dispatcher.
type Collaborator interface {
	Create(ctx context.Context, tenantID string, entity EntityType, attrs json.RawMessage) Result
	Update(ctx context.Context, tenantID string, entity EntityType, id string, attrs json.RawMessage) Result
	Delete(ctx context.Context, tenantID string, entity EntityType, id string) Result
	Get(ctx context.Context, tenantID string, entity EntityType, id string) Result
	List(ctx context.Context, tenantID string, entity EntityType) Result
}
