package corpus

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/db"
	"github.com/featly/featly/internal/domain"
	"github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/provider/providertest"
	"github.com/featly/featly/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver string

func (r staticResolver) Resolve(ctx context.Context, tenantID string) (string, error) {
	return string(r), nil
}

func newPipeline(t *testing.T, fake *providertest.Fake, mem *domain.Memory) (*Pipeline, *store.Store) {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "featly.db"))
	require.NoError(t, err)
	st, err := store.New(gdb)
	require.NoError(t, err)

	fake.Seed(provider.Assistant{ID: "asst_live"})
	p, err := NewPipeline(fake, st, NewExporter(mem), staticResolver("asst_live"),
		config.SyncConfig{PollInterval: "1ms", MaxPollAttempts: 3})
	require.NoError(t, err)
	return p, st
}

func seedEntity(t *testing.T, mem *domain.Memory, tenantID string, entity domain.EntityType, attrs string) {
	t.Helper()
	res := mem.Create(context.Background(), tenantID, entity, json.RawMessage(attrs))
	require.True(t, res.Success, res.Error)
}

func TestSyncSkipsEmptyCorpus(t *testing.T) {
	fake := providertest.NewFake()
	p, _ := newPipeline(t, fake, domain.NewMemory())

	res, err := p.Sync(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, fake.Calls["UploadFile"])
	assert.Zero(t, fake.Calls["CreateVectorStore"])
}

func TestSyncUploadsAttachesAndRecords(t *testing.T) {
	fake := providertest.NewFake()
	mem := domain.NewMemory()
	seedEntity(t, mem, "t1", domain.EntityProduct, `{"name":"Atlas"}`)
	p, st := newPipeline(t, fake, mem)
	ctx := context.Background()

	require.NoError(t, store.NewReferences(st).WriteThrough(ctx, "t1", "asst_live"))

	res, err := p.Sync(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, res.FileID)
	assert.Equal(t, 1, res.ItemCount)

	// First sync creates the vector store and binds it to the assistant.
	assert.Equal(t, 1, fake.Calls["CreateVectorStore"])
	assert.Equal(t, 1, fake.Calls["BindVectorStore"])

	rec, err := st.GetAssistantRecord(ctx, "t1")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.VectorStoreID)
	assert.Equal(t, []string{res.FileID}, rec.FileIDs)
	assert.False(t, rec.LastSyncedAt.IsZero())
}

func TestSyncReusesVectorStore(t *testing.T) {
	fake := providertest.NewFake()
	mem := domain.NewMemory()
	seedEntity(t, mem, "t1", domain.EntityProduct, `{"name":"Atlas"}`)
	p, st := newPipeline(t, fake, mem)
	ctx := context.Background()

	require.NoError(t, store.NewReferences(st).WriteThrough(ctx, "t1", "asst_live"))

	_, err := p.Sync(ctx, "t1")
	require.NoError(t, err)
	_, err = p.Sync(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.Calls["CreateVectorStore"])
}

func TestSyncPrunesStaleFiles(t *testing.T) {
	fake := providertest.NewFake()
	mem := domain.NewMemory()
	seedEntity(t, mem, "t1", domain.EntityProduct, `{"name":"Atlas"}`)
	p, st := newPipeline(t, fake, mem)
	ctx := context.Background()

	require.NoError(t, store.NewReferences(st).WriteThrough(ctx, "t1", "asst_live"))

	first, err := p.Sync(ctx, "t1")
	require.NoError(t, err)
	second, err := p.Sync(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, []string{first.FileID}, second.RemovedFiles)
	assert.Contains(t, fake.DeletedFiles, first.FileID)

	rec, err := st.GetAssistantRecord(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{second.FileID}, rec.FileIDs)
}

func TestSyncIndexingTimeout(t *testing.T) {
	fake := providertest.NewFake()
	fake.IndexCompletionAfter = -1
	mem := domain.NewMemory()
	seedEntity(t, mem, "t1", domain.EntityProduct, `{"name":"Atlas"}`)
	p, st := newPipeline(t, fake, mem)
	ctx := context.Background()

	require.NoError(t, store.NewReferences(st).WriteThrough(ctx, "t1", "asst_live"))

	_, err := p.Sync(ctx, "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIndexingTimeout)

	// The record must not advance to a file that never finished indexing.
	rec, err := st.GetAssistantRecord(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, rec.FileIDs)
}

func TestSyncUploadFailure(t *testing.T) {
	fake := providertest.NewFake()
	fake.FailWith["UploadFile"] = errors.Transient("rate limited")
	mem := domain.NewMemory()
	seedEntity(t, mem, "t1", domain.EntityProduct, `{"name":"Atlas"}`)
	p, _ := newPipeline(t, fake, mem)

	_, err := p.Sync(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUpload)
}

func TestSyncAllIsolatesTenantFailures(t *testing.T) {
	fake := providertest.NewFake()
	mem := domain.NewMemory()
	seedEntity(t, mem, "t1", domain.EntityProduct, `{"name":"Atlas"}`)
	seedEntity(t, mem, "t2", domain.EntityProduct, `{"name":"Zephyr"}`)
	p, st := newPipeline(t, fake, mem)
	ctx := context.Background()

	refs := store.NewReferences(st)
	require.NoError(t, refs.WriteThrough(ctx, "t1", "asst_live"))
	require.NoError(t, refs.WriteThrough(ctx, "t2", "asst_live"))

	// A persistent upload failure stops individual syncs but never the batch.
	fake.FailWith["UploadFile"] = errors.Transient("rate limited")
	results, err := p.SyncAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 2, fake.Calls["UploadFile"])

	delete(fake.FailWith, "UploadFile")
	results, err = p.SyncAll(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
