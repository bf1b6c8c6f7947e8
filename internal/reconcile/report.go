package reconcile

import (
	"bytes"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

const (
	StateValid     = "valid"
	StateOrphaned  = "orphaned"
	StateDuplicate = "duplicate"

	SourceSettings = "tenant_settings"
	SourceRecord   = "assistant_record"
)

// Detail is one examined assistant reference in the report.
type Detail struct {
	TenantID    string   `yaml:"tenant_id" json:"tenant_id"`
	AssistantID string   `yaml:"assistant_id" json:"assistant_id"`
	Sources     []string `yaml:"sources" json:"sources"`
	State       string   `yaml:"state" json:"state"`
	Removed     bool     `yaml:"removed,omitempty" json:"removed,omitempty"`
}

// Failure records a tenant whose verification or repair did not finish.
// Failures never abort the scan; they accumulate here.
type Failure struct {
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	AssistantID string `yaml:"assistant_id" json:"assistant_id"`
	Error       string `yaml:"error" json:"error"`
}

// Report is the audit artifact of one reconciliation pass.
type Report struct {
	GeneratedAt time.Time `yaml:"generated_at" json:"generated_at"`
	DryRun      bool      `yaml:"dry_run" json:"dry_run"`

	TotalTenantsChecked       int `yaml:"total_tenants_checked" json:"total_tenants_checked"`
	ValidAssistantsFound      int `yaml:"valid_assistants_found" json:"valid_assistants_found"`
	OrphanedReferencesFound   int `yaml:"orphaned_references_found" json:"orphaned_references_found"`
	OrphanedReferencesRemoved int `yaml:"orphaned_references_removed" json:"orphaned_references_removed"`
	DuplicatesCollapsed       int `yaml:"duplicates_collapsed" json:"duplicates_collapsed"`

	Details  []Detail  `yaml:"details,omitempty" json:"details,omitempty"`
	Failures []Failure `yaml:"failures,omitempty" json:"failures,omitempty"`
}

func (r *Report) addFailure(tenantID, assistantID string, err error) {
	r.Failures = append(r.Failures, Failure{
		TenantID:    tenantID,
		AssistantID: assistantID,
		Error:       err.Error(),
	})
}

// Clean reports whether the pass found nothing to repair and hit no
// verification failures.
func (r Report) Clean() bool {
	return r.OrphanedReferencesFound == 0 && r.DuplicatesCollapsed == 0 && len(r.Failures) == 0
}

// WriteFile writes the report as YAML, atomically so a crash mid-write
// never leaves a truncated artifact behind.
func (r Report) WriteFile(path string) error {
	encoded, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reconcile report: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("write reconcile report %s: %w", path, err)
	}
	return nil
}
