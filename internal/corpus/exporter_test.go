package corpus

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/featly/featly/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportEmptyTenant(t *testing.T) {
	exporter := NewExporter(domain.NewMemory())

	snap, err := exporter.Export(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, snap.Empty())
	assert.Empty(t, snap.Content)
	assert.Zero(t, snap.CharCount)
}

func TestExportRendersEntities(t *testing.T) {
	mem := domain.NewMemory()
	ctx := context.Background()

	res := mem.Create(ctx, "t1", domain.EntityProduct, json.RawMessage(`{"name":"Atlas","description":"mapping platform"}`))
	require.True(t, res.Success, res.Error)
	res = mem.Create(ctx, "t1", domain.EntityFeature, json.RawMessage(`{"name":"Offline tiles","status":"planned"}`))
	require.True(t, res.Success, res.Error)

	// A second tenant's data must not leak into t1's corpus.
	res = mem.Create(ctx, "t2", domain.EntityProduct, json.RawMessage(`{"name":"Zephyr"}`))
	require.True(t, res.Success, res.Error)

	snap, err := NewExporter(mem).Export(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, "t1", snap.TenantID)
	assert.Equal(t, 2, snap.ItemCount)
	assert.Equal(t, len(snap.Content), snap.CharCount)

	assert.Contains(t, snap.Content, "# Workspace knowledge base")
	assert.Contains(t, snap.Content, "## Products")
	assert.Contains(t, snap.Content, "### Atlas")
	assert.Contains(t, snap.Content, "description: mapping platform")
	assert.Contains(t, snap.Content, "## Features")
	assert.Contains(t, snap.Content, "### Offline tiles")
	assert.Contains(t, snap.Content, "status: planned")
	assert.NotContains(t, snap.Content, "Zephyr")
}

func TestExportOrdersSectionsByEntityKind(t *testing.T) {
	mem := domain.NewMemory()
	ctx := context.Background()

	// Inserted release-first; the rendered document still leads with products.
	require.True(t, mem.Create(ctx, "t1", domain.EntityRelease, json.RawMessage(`{"name":"v1.0"}`)).Success)
	require.True(t, mem.Create(ctx, "t1", domain.EntityProduct, json.RawMessage(`{"name":"Atlas"}`)).Success)

	snap, err := NewExporter(mem).Export(ctx, "t1")
	require.NoError(t, err)
	assert.Less(t,
		strings.Index(snap.Content, "## Products"),
		strings.Index(snap.Content, "## Releases"))
}
