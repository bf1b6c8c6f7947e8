// Package reconcile is the consistency backstop for the assistant
// tracking stores: it validates every recorded assistant id against the
// provider, clears orphans, repairs one-sided records, and collapses
// race-created duplicates down to one canonical assistant per tenant.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/store"
)

// Invalidator drops cached assistant ids after a repair so readers do
// not keep serving an id the reconciler just retired.
type Invalidator interface {
	Invalidate(tenantID string)
}

type Reconciler struct {
	client provider.Client
	store  *store.Store
	refs   *store.References
	cache  Invalidator
}

func New(client provider.Client, st *store.Store, cache Invalidator) *Reconciler {
	return &Reconciler{
		client: client,
		store:  st,
		refs:   store.NewReferences(st),
		cache:  cache,
	}
}

// reference is one assistant id claimed for a tenant, with the stores
// that claim it.
type reference struct {
	tenantID    string
	assistantID string
	inSettings  bool
	inRecord    bool
}

func (r *Reconciler) Run(ctx context.Context, dryRun bool) (Report, error) {
	report := Report{
		DryRun:      dryRun,
		GeneratedAt: time.Now().UTC(),
	}

	refs, err := r.collect(ctx)
	if err != nil {
		return report, err
	}

	byTenant := make(map[string][]reference)
	for _, ref := range refs {
		byTenant[ref.tenantID] = append(byTenant[ref.tenantID], ref)
	}

	tenants := make([]string, 0, len(byTenant))
	for tenant := range byTenant {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	report.TotalTenantsChecked = len(tenants)

	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := r.reconcileTenant(ctx, tenant, byTenant[tenant], dryRun, &report); err != nil {
			return report, err
		}
	}

	slog.Info("Reconciliation finished",
		"dry_run", dryRun,
		"tenants", report.TotalTenantsChecked,
		"valid", report.ValidAssistantsFound,
		"orphans", report.OrphanedReferencesFound,
		"removed", report.OrphanedReferencesRemoved,
		"collapsed", report.DuplicatesCollapsed,
		"failures", len(report.Failures))
	return report, nil
}

// collect enumerates assistant references from both stores independently
// so a row missing from one side is still examined.
func (r *Reconciler) collect(ctx context.Context) ([]reference, error) {
	byKey := make(map[[2]string]*reference)
	var order [][2]string

	add := func(tenantID, assistantID string, fromSettings bool) {
		key := [2]string{tenantID, assistantID}
		ref, ok := byKey[key]
		if !ok {
			ref = &reference{tenantID: tenantID, assistantID: assistantID}
			byKey[key] = ref
			order = append(order, key)
		}
		if fromSettings {
			ref.inSettings = true
		} else {
			ref.inRecord = true
		}
	}

	allSettings, err := r.store.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	for _, ts := range allSettings {
		if id, ok := ts.Settings[store.SettingsKeyAssistantID].(string); ok && id != "" {
			add(ts.TenantID, id, true)
		}
	}

	records, err := r.store.ListAssistantRecords(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.AssistantID != "" {
			add(rec.TenantID, rec.AssistantID, false)
		}
	}

	out := make([]reference, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}

func (r *Reconciler) reconcileTenant(ctx context.Context, tenantID string, refs []reference, dryRun bool, report *Report) error {
	var valid []reference

	for _, ref := range refs {
		_, err := r.client.RetrieveAssistant(ctx, ref.assistantID)
		switch {
		case err == nil:
			valid = append(valid, ref)
			report.ValidAssistantsFound++
			report.Details = append(report.Details, Detail{
				TenantID:    tenantID,
				AssistantID: ref.assistantID,
				Sources:     ref.sources(),
				State:       StateValid,
			})
		case errors.Is(err, featlyErrors.ErrConfiguration):
			// Nothing can be verified without working credentials.
			return err
		case errors.Is(err, featlyErrors.ErrNotFound):
			report.OrphanedReferencesFound++
			removed := false
			if !dryRun {
				if err := r.clear(ctx, ref); err != nil {
					report.addFailure(tenantID, ref.assistantID, err)
					break
				}
				removed = true
				report.OrphanedReferencesRemoved++
			}
			report.Details = append(report.Details, Detail{
				TenantID:    tenantID,
				AssistantID: ref.assistantID,
				Sources:     ref.sources(),
				State:       StateOrphaned,
				Removed:     removed,
			})
		default:
			report.addFailure(tenantID, ref.assistantID, err)
		}
	}

	if len(valid) == 0 {
		return nil
	}

	survivor := valid[0]
	for _, ref := range valid[1:] {
		if ref.assistantID < survivor.assistantID {
			survivor = ref
		}
	}

	// Duplicates: several live assistants for one tenant, usually left
	// behind by concurrent first resolves. The smallest id survives so
	// every instance picks the same winner.
	for _, ref := range valid {
		if ref.assistantID == survivor.assistantID {
			continue
		}
		report.DuplicatesCollapsed++
		report.Details = append(report.Details, Detail{
			TenantID:    tenantID,
			AssistantID: ref.assistantID,
			Sources:     ref.sources(),
			State:       StateDuplicate,
			Removed:     !dryRun,
		})
		if dryRun {
			continue
		}
		if err := r.client.DeleteAssistant(ctx, ref.assistantID); err != nil && !errors.Is(err, featlyErrors.ErrNotFound) {
			report.addFailure(tenantID, ref.assistantID, err)
		}
	}

	if dryRun {
		return nil
	}

	// Converge both stores on the survivor and drop any cached id.
	if !survivor.inSettings || !survivor.inRecord || len(valid) > 1 {
		if err := r.refs.WriteThrough(ctx, tenantID, survivor.assistantID); err != nil {
			report.addFailure(tenantID, survivor.assistantID, err)
			return nil
		}
		slog.Info("Assistant reference repaired", "tenant", tenantID, "assistant", survivor.assistantID)
	}
	if r.cache != nil {
		r.cache.Invalidate(tenantID)
	}
	return nil
}

// clear removes one orphaned reference from whichever stores named it.
// System A loses only the assistant key; sibling settings stay intact.
func (r *Reconciler) clear(ctx context.Context, ref reference) error {
	if ref.inSettings {
		if err := r.refs.ClearSystemA(ctx, ref.tenantID); err != nil {
			return err
		}
	}
	if ref.inRecord {
		if err := r.refs.ClearSystemB(ctx, ref.tenantID); err != nil {
			return err
		}
	}
	slog.Info("Orphaned assistant reference removed",
		"tenant", ref.tenantID, "assistant", ref.assistantID, "sources", ref.sources())
	return nil
}

func (ref reference) sources() []string {
	var sources []string
	if ref.inSettings {
		sources = append(sources, SourceSettings)
	}
	if ref.inRecord {
		sources = append(sources, SourceRecord)
	}
	return sources
}
