// Package corpus builds the tenant's knowledge corpus from its domain
// entities and keeps the provider's vector index converged on it.
package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/featly/featly/internal/domain"
)

// Snapshot is the serialized text representation of a tenant's domain
// entities at export time. It is ephemeral: built fresh per sync and
// immediately converted into a provider file.
type Snapshot struct {
	TenantID  string
	Content   string
	ItemCount int
	CharCount int
	BuiltAt   time.Time
}

// Empty reports whether the tenant had nothing to export.
func (s Snapshot) Empty() bool {
	return s.ItemCount == 0
}

var exportOrder = []domain.EntityType{
	domain.EntityProduct,
	domain.EntityFeature,
	domain.EntityRequirement,
	domain.EntityRelease,
	domain.EntityRoadmap,
}

type Exporter struct {
	domain domain.Collaborator
}

func NewExporter(d domain.Collaborator) *Exporter {
	return &Exporter{domain: d}
}

// Export reads every entity kind for the tenant through the CRUD layer
// and renders one markdown document.
func (e *Exporter) Export(ctx context.Context, tenantID string) (Snapshot, error) {
	var b strings.Builder
	itemCount := 0

	fmt.Fprintf(&b, "# Workspace knowledge base\n\nTenant: %s\n", tenantID)

	for _, entity := range exportOrder {
		res := e.domain.List(ctx, tenantID, entity)
		if !res.Success {
			return Snapshot{}, fmt.Errorf("export %s for tenant %s: %s", entity, tenantID, res.Error)
		}

		var records []map[string]any
		if len(res.Data) > 0 {
			if err := json.Unmarshal(res.Data, &records); err != nil {
				return Snapshot{}, fmt.Errorf("decode %s list for tenant %s: %w", entity, tenantID, err)
			}
		}
		if len(records) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n## %s\n", sectionTitle(entity))
		for _, record := range records {
			b.WriteString(renderRecord(record))
			itemCount++
		}
	}

	snap := Snapshot{
		TenantID:  tenantID,
		ItemCount: itemCount,
		BuiltAt:   time.Now().UTC(),
	}
	if itemCount > 0 {
		snap.Content = b.String()
		snap.CharCount = len(snap.Content)
	}
	return snap, nil
}

func sectionTitle(entity domain.EntityType) string {
	s := string(entity)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "s"
}

func renderRecord(record map[string]any) string {
	var b strings.Builder

	title, _ := record["name"].(string)
	if title == "" {
		title, _ = record["title"].(string)
	}
	if title == "" {
		title, _ = record["id"].(string)
	}
	fmt.Fprintf(&b, "\n### %s\n", title)

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "name" || k == "title" {
			continue
		}
		v := record[k]
		if v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				fmt.Fprintf(&b, "- %s: %s\n", k, val)
			}
		default:
			encoded, err := json.Marshal(val)
			if err == nil {
				fmt.Fprintf(&b, "- %s: %s\n", k, string(encoded))
			}
		}
	}
	return b.String()
}
