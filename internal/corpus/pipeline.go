package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/featly/featly/internal/config"
	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/store"
)

// AssistantResolver yields the tenant's assistant id, creating one when
// none can be proven to exist.
type AssistantResolver interface {
	Resolve(ctx context.Context, tenantID string) (string, error)
}

// SyncResult reports what one pipeline pass did for a tenant.
type SyncResult struct {
	TenantID     string
	Skipped      bool
	FileID       string
	ItemCount    int
	CharCount    int
	RemovedFiles []string
}

// Pipeline converges a tenant's vector index on the latest corpus:
// export, upload, attach, poll to completion, then prune stale files.
// Sync is idempotent and safe to call on a schedule or on demand.
type Pipeline struct {
	client   provider.Client
	store    *store.Store
	refs     *store.References
	exporter *Exporter
	resolver AssistantResolver

	pollInterval    time.Duration
	maxPollAttempts int
}

func NewPipeline(client provider.Client, st *store.Store, exporter *Exporter, resolver AssistantResolver, cfg config.SyncConfig) (*Pipeline, error) {
	pollInterval, err := config.DurationOrDefault(cfg.PollInterval, config.DefaultSyncPollInterval)
	if err != nil {
		return nil, fmt.Errorf("parse sync poll interval: %w", err)
	}

	maxAttempts := cfg.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultSyncMaxPollAttempts
	}

	return &Pipeline{
		client:          client,
		store:           st,
		refs:            store.NewReferences(st),
		exporter:        exporter,
		resolver:        resolver,
		pollInterval:    pollInterval,
		maxPollAttempts: maxAttempts,
	}, nil
}

func (p *Pipeline) Sync(ctx context.Context, tenantID string) (SyncResult, error) {
	result := SyncResult{TenantID: tenantID}

	snap, err := p.exporter.Export(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("export corpus for tenant %s: %v: %w", tenantID, err, featlyErrors.ErrSync)
	}
	result.ItemCount = snap.ItemCount
	result.CharCount = snap.CharCount

	// Nothing to index: leave the vector store untouched rather than
	// attaching empty files.
	if snap.Empty() {
		result.Skipped = true
		slog.Info("Corpus sync skipped, tenant has no entities", "tenant", tenantID)
		return result, nil
	}

	assistantID, err := p.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return result, err
	}

	fileName := fmt.Sprintf("corpus-%s-%d.md", tenantID, snap.BuiltAt.Unix())
	file, err := p.client.UploadFile(ctx, fileName, []byte(snap.Content))
	if err != nil {
		return result, fmt.Errorf("upload corpus %s: %w", fileName, wrapUpload(err))
	}
	result.FileID = file.ID

	vectorStoreID, err := p.ensureVectorStore(ctx, tenantID, assistantID)
	if err != nil {
		return result, err
	}

	if _, err := p.client.AttachFile(ctx, vectorStoreID, file.ID); err != nil {
		return result, fmt.Errorf("attach corpus %s: %w", file.ID, wrapUpload(err))
	}

	if err := p.awaitIndexed(ctx, vectorStoreID, file.ID); err != nil {
		return result, err
	}

	result.RemovedFiles = p.pruneStaleFiles(ctx, vectorStoreID, file.ID)

	rec, err := p.store.GetAssistantRecord(ctx, tenantID)
	if err != nil {
		return result, err
	}
	rec.FileIDs = []string{file.ID}
	rec.LastSyncedAt = time.Now().UTC()
	if err := p.store.SaveAssistantRecord(ctx, rec); err != nil {
		return result, err
	}

	slog.Info("Corpus sync completed",
		"tenant", tenantID,
		"file", file.ID,
		"items", snap.ItemCount,
		"chars", snap.CharCount,
		"pruned", len(result.RemovedFiles))
	return result, nil
}

// SyncAll runs Sync for every tenant named by either tracking store.
// One tenant's failure never aborts the batch.
func (p *Pipeline) SyncAll(ctx context.Context) ([]SyncResult, error) {
	tenants, err := p.refs.Tenants(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SyncResult, 0, len(tenants))
	for _, tenant := range tenants {
		res, err := p.Sync(ctx, tenant)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			slog.Error("Corpus sync failed", "tenant", tenant, "category", featlyErrors.Category(err), "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Pipeline) ensureVectorStore(ctx context.Context, tenantID, assistantID string) (string, error) {
	rec, err := p.store.GetAssistantRecord(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if rec.VectorStoreID != "" {
		return rec.VectorStoreID, nil
	}

	vs, err := p.client.CreateVectorStore(ctx, "featly-corpus-"+tenantID)
	if err != nil {
		return "", err
	}
	if err := p.client.BindVectorStore(ctx, assistantID, vs.ID); err != nil {
		return "", err
	}

	rec.VectorStoreID = vs.ID
	if err := p.store.SaveAssistantRecord(ctx, rec); err != nil {
		return "", err
	}
	slog.Info("Vector store created", "tenant", tenantID, "vector_store", vs.ID)
	return vs.ID, nil
}

// awaitIndexed polls until the attached file reports completed. Success
// requires observing the completed status; "attach accepted" is not
// enough, which is what made stale-context bugs possible before.
func (p *Pipeline) awaitIndexed(ctx context.Context, vectorStoreID, fileID string) error {
	for attempt := 0; attempt < p.maxPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.pollInterval):
			}
		}

		files, err := p.client.ListVectorStoreFiles(ctx, vectorStoreID)
		if err != nil {
			if featlyErrors.IsRetryable(err) {
				continue
			}
			return err
		}

		for _, f := range files {
			if f.FileID != fileID {
				continue
			}
			switch f.Status {
			case provider.IndexCompleted:
				return nil
			case provider.IndexFailed, provider.IndexCancelled:
				return featlyErrors.Wrap(featlyErrors.ErrIndexing,
					fmt.Sprintf("file %s ended %s", fileID, f.Status))
			}
		}
	}

	return featlyErrors.Wrap(featlyErrors.ErrIndexingTimeout,
		fmt.Sprintf("file %s not indexed after %d attempts", fileID, p.maxPollAttempts))
}

// pruneStaleFiles removes every previously attached file except the one
// just confirmed. Cleanup is best effort; failures are logged, never fatal.
func (p *Pipeline) pruneStaleFiles(ctx context.Context, vectorStoreID, keepFileID string) []string {
	files, err := p.client.ListVectorStoreFiles(ctx, vectorStoreID)
	if err != nil {
		slog.Warn("Stale file enumeration failed", "vector_store", vectorStoreID, "error", err)
		return nil
	}

	var removed []string
	for _, f := range files {
		if f.FileID == keepFileID {
			continue
		}
		if err := p.client.DetachFile(ctx, vectorStoreID, f.FileID); err != nil {
			slog.Warn("Stale file detach failed", "file", f.FileID, "error", err)
			continue
		}
		if err := p.client.DeleteFile(ctx, f.FileID); err != nil {
			slog.Warn("Stale file delete failed", "file", f.FileID, "error", err)
		}
		removed = append(removed, f.FileID)
	}
	return removed
}

func wrapUpload(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", featlyErrors.ErrUpload, err.Error())
}
