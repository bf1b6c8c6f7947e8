// Package action tracks proposed agent operations through their
// confirmation lifecycle: pending, confirmed or rejected or cancelled,
// then completed or failed, with lazy expiry of unanswered dialogs.
package action

import (
	"strings"

	"github.com/featly/featly/internal/domain"
	featlyErrors "github.com/featly/featly/internal/errors"
)

type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpGet    Operation = "get"
	OpList   Operation = "list"
)

// Destructive reports whether the operation mutates domain state and
// therefore needs user confirmation before execution.
func (o Operation) Destructive() bool {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ParseFunction splits an agent tool name like "create_product" or
// "list_features" into its operation and entity kind.
func ParseFunction(name string) (Operation, domain.EntityType, error) {
	op, rest, ok := strings.Cut(name, "_")
	if !ok {
		return "", "", featlyErrors.Validation("unknown function " + name)
	}

	operation := Operation(op)
	switch operation {
	case OpCreate, OpUpdate, OpDelete, OpGet, OpList:
	default:
		return "", "", featlyErrors.Validation("unknown function " + name)
	}

	entity := domain.EntityType(rest)
	if operation == OpList {
		entity = domain.EntityType(strings.TrimSuffix(rest, "s"))
	}
	if !entity.Known() {
		return "", "", featlyErrors.Validation("unknown entity in function " + name)
	}
	return operation, entity, nil
}

// Classify reports whether the named function requires confirmation.
// Unknown functions classify as destructive so nothing slips through.
func Classify(name string) bool {
	op, _, err := ParseFunction(name)
	if err != nil {
		return true
	}
	return op.Destructive()
}
