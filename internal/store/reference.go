package store

import (
	"context"
	"errors"
	"sort"

	featlyErrors "github.com/featly/featly/internal/errors"
)

// Reference is the logical "tenant T's assistant is A" fact as seen by
// both physical stores. At a quiescent moment SystemA and SystemB agree
// or are both empty; during repair they may transiently disagree.
type Reference struct {
	TenantID string
	SystemA  string
	SystemB  string
}

// Agreed reports whether both stores name the same non-empty assistant.
func (r Reference) Agreed() bool {
	return r.SystemA != "" && r.SystemA == r.SystemB
}

// Empty reports whether neither store names an assistant.
func (r Reference) Empty() bool {
	return r.SystemA == "" && r.SystemB == ""
}

// References exposes the dual-store assistant reference as one
// repository: reads surface both sides, writes go through to both.
type References struct {
	store *Store
}

func NewReferences(s *Store) *References {
	return &References{store: s}
}

func (r *References) Read(ctx context.Context, tenantID string) (Reference, error) {
	ref := Reference{TenantID: tenantID}

	settings, err := r.store.GetSettings(ctx, tenantID)
	if err != nil {
		return Reference{}, err
	}
	if id, ok := settings[SettingsKeyAssistantID].(string); ok {
		ref.SystemA = id
	}

	rec, err := r.store.GetAssistantRecord(ctx, tenantID)
	if err != nil && !errors.Is(err, featlyErrors.ErrNotFound) {
		return Reference{}, err
	}
	ref.SystemB = rec.AssistantID

	return ref, nil
}

// WriteThrough records the assistant in both stores. The two writes are
// one logical step but not atomic across stores; the reconciler repairs
// a partial write.
func (r *References) WriteThrough(ctx context.Context, tenantID, assistantID string) error {
	if err := r.store.SetSettingsKey(ctx, tenantID, SettingsKeyAssistantID, assistantID); err != nil {
		return err
	}

	rec, err := r.store.GetAssistantRecord(ctx, tenantID)
	if err != nil && !errors.Is(err, featlyErrors.ErrNotFound) {
		return err
	}
	rec.TenantID = tenantID
	rec.AssistantID = assistantID
	return r.store.SaveAssistantRecord(ctx, rec)
}

// ClearSystemA removes only the assistant key from the tenant's settings
// blob; sibling settings are preserved.
func (r *References) ClearSystemA(ctx context.Context, tenantID string) error {
	return r.store.RemoveSettingsKey(ctx, tenantID, SettingsKeyAssistantID)
}

// ClearSystemB deletes the tenant's assistant record outright.
func (r *References) ClearSystemB(ctx context.Context, tenantID string) error {
	return r.store.DeleteAssistantRecord(ctx, tenantID)
}

// Tenants returns every tenant named by either store, deduplicated and sorted.
func (r *References) Tenants(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}

	all, err := r.store.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	for _, ts := range all {
		if id, ok := ts.Settings[SettingsKeyAssistantID].(string); ok && id != "" {
			seen[ts.TenantID] = struct{}{}
		}
	}

	records, err := r.store.ListAssistantRecords(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.AssistantID != "" {
			seen[rec.TenantID] = struct{}{}
		}
	}

	tenants := make([]string, 0, len(seen))
	for tenant := range seen {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants, nil
}
