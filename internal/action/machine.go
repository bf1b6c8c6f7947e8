package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/featly/featly/internal/config"
	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/store"
)

// Machine owns the confirmation lifecycle of agent actions. It decides
// nothing about execution; the dispatcher consults it and acts on the
// answer.
type Machine struct {
	store         *store.Store
	defaultExpiry time.Duration
	now           func() time.Time
}

func NewMachine(st *store.Store, cfg config.ConfirmationConfig) (*Machine, error) {
	expiry, err := config.DurationOrDefault(cfg.DefaultExpiry, config.DefaultConfirmationExpiry)
	if err != nil {
		return nil, fmt.Errorf("parse confirmation expiry: %w", err)
	}
	return &Machine{store: st, defaultExpiry: expiry, now: time.Now}, nil
}

// ProposeInput describes a function call the agent wants to run.
type ProposeInput struct {
	TenantID     string
	UserID       string
	SessionID    string
	FunctionName string
	Parameters   json.RawMessage
}

// Propose records the call as a pending AgentAction and classifies it.
// The returned action's RequiresConfirmation flag tells the dispatcher
// whether to execute immediately or wait for the user.
func (m *Machine) Propose(ctx context.Context, in ProposeInput) (store.AgentAction, error) {
	op, entity, parseErr := ParseFunction(in.FunctionName)

	rec := store.AgentAction{
		ID:                   ulid.Make().String(),
		UserID:               in.UserID,
		TenantID:             in.TenantID,
		SessionID:            in.SessionID,
		FunctionName:         in.FunctionName,
		Parameters:           in.Parameters,
		RequiresConfirmation: Classify(in.FunctionName),
		Status:               store.ActionPending,
		CreatedAt:            m.now().UTC(),
	}
	if parseErr == nil {
		rec.EntityType = string(entity)
		rec.OperationType = string(op)
	}

	if err := m.store.CreateAction(ctx, rec); err != nil {
		return store.AgentAction{}, err
	}
	return rec, nil
}

// ConfirmationInput describes the dialog to raise for a pending action.
type ConfirmationInput struct {
	ActionID      string
	DialogType    string
	Title         string
	Message       string
	Details       json.RawMessage
	ExpiresInMins int
}

// CreateConfirmation raises a confirmation dialog for the action. An
// action owned by another user or tenant is reported as not found, the
// same as a nonexistent one.
func (m *Machine) CreateConfirmation(ctx context.Context, tenantID, userID string, in ConfirmationInput) (store.Confirmation, error) {
	act, err := m.ownedAction(ctx, in.ActionID, tenantID, userID)
	if err != nil {
		return store.Confirmation{}, err
	}
	if act.Status.Terminal() {
		return store.Confirmation{}, featlyErrors.Wrap(featlyErrors.ErrConflict,
			fmt.Sprintf("action %s already %s", act.ID, act.Status))
	}

	expiry := m.defaultExpiry
	if in.ExpiresInMins > 0 {
		expiry = time.Duration(in.ExpiresInMins) * time.Minute
	}

	rec := store.Confirmation{
		ID:         ulid.Make().String(),
		ActionID:   act.ID,
		DialogType: in.DialogType,
		Title:      in.Title,
		Message:    in.Message,
		Details:    in.Details,
		ExpiresAt:  m.now().UTC().Add(expiry),
		CreatedAt:  m.now().UTC(),
	}
	if err := m.store.CreateConfirmation(ctx, rec); err != nil {
		return store.Confirmation{}, err
	}
	return rec, nil
}

// Respond applies the user's answer. Re-applying the same answer is a
// no-op; a different answer after a terminal state is a conflict.
func (m *Machine) Respond(ctx context.Context, confirmationID string, response store.ConfirmationResponse, details json.RawMessage) (store.Confirmation, error) {
	switch response {
	case store.ResponseConfirmed, store.ResponseRejected, store.ResponseCancelled:
	default:
		return store.Confirmation{}, featlyErrors.Validation("unknown confirmation response " + string(response))
	}

	conf, err := m.store.GetConfirmation(ctx, confirmationID)
	if err != nil {
		return store.Confirmation{}, err
	}

	if conf.Response != "" {
		if conf.Response == response {
			return conf, nil
		}
		return store.Confirmation{}, featlyErrors.Wrap(featlyErrors.ErrConflict,
			fmt.Sprintf("confirmation %s already %s", conf.ID, conf.Response))
	}
	if m.now().After(conf.ExpiresAt) {
		return store.Confirmation{}, featlyErrors.Wrap(featlyErrors.ErrConflict,
			fmt.Sprintf("confirmation %s expired", conf.ID))
	}

	respondedAt := m.now().UTC()
	conf.Response = response
	conf.ResponseDetails = details
	conf.RespondedAt = &respondedAt
	if err := m.store.SaveConfirmation(ctx, conf); err != nil {
		return store.Confirmation{}, err
	}

	act, err := m.store.GetAction(ctx, conf.ActionID)
	if err != nil {
		return store.Confirmation{}, err
	}
	switch response {
	case store.ResponseConfirmed:
		act.Status = store.ActionConfirmed
		act.ConfirmedAt = &respondedAt
	case store.ResponseRejected:
		act.Status = store.ActionRejected
	case store.ResponseCancelled:
		act.Status = store.ActionCancelled
	}
	if err := m.store.SaveAction(ctx, act); err != nil {
		return store.Confirmation{}, err
	}

	slog.Info("Confirmation answered", "confirmation", conf.ID, "action", act.ID, "response", response)
	return conf, nil
}

// ConfirmedAction loads the action named by a resubmitted call and
// verifies it is confirmed, owned by the caller, and matches the
// function being re-run.
func (m *Machine) ConfirmedAction(ctx context.Context, actionID, tenantID, userID, functionName string) (store.AgentAction, error) {
	act, err := m.ownedAction(ctx, actionID, tenantID, userID)
	if err != nil {
		return store.AgentAction{}, err
	}
	if act.FunctionName != functionName {
		return store.AgentAction{}, featlyErrors.Validation(
			fmt.Sprintf("action %s confirms %s, not %s", act.ID, act.FunctionName, functionName))
	}
	if act.Status != store.ActionConfirmed {
		return store.AgentAction{}, featlyErrors.Wrap(featlyErrors.ErrConfirmationRequired,
			fmt.Sprintf("action %s is %s", act.ID, act.Status))
	}
	return act, nil
}

// MarkCompleted records the domain result on the action.
func (m *Machine) MarkCompleted(ctx context.Context, actionID string, result json.RawMessage) error {
	return m.finish(ctx, actionID, store.ActionCompleted, result, "")
}

// MarkFailed records the execution failure on the action.
func (m *Machine) MarkFailed(ctx context.Context, actionID, message string) error {
	return m.finish(ctx, actionID, store.ActionFailed, nil, message)
}

func (m *Machine) finish(ctx context.Context, actionID string, status store.ActionStatus, result json.RawMessage, message string) error {
	act, err := m.store.GetAction(ctx, actionID)
	if err != nil {
		return err
	}
	completedAt := m.now().UTC()
	act.Status = status
	act.Result = result
	act.Error = message
	act.CompletedAt = &completedAt
	return m.store.SaveAction(ctx, act)
}

// CleanupExpired sweeps overdue unanswered confirmations to cancelled
// and returns how many were swept.
func (m *Machine) CleanupExpired(ctx context.Context) (int, error) {
	overdue, err := m.store.ListOverdueConfirmations(ctx, m.now().UTC())
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, conf := range overdue {
		respondedAt := m.now().UTC()
		conf.Response = store.ResponseCancelled
		conf.RespondedAt = &respondedAt
		if err := m.store.SaveConfirmation(ctx, conf); err != nil {
			return swept, err
		}

		act, err := m.store.GetAction(ctx, conf.ActionID)
		if err != nil {
			if errors.Is(err, featlyErrors.ErrNotFound) {
				continue
			}
			return swept, err
		}
		if !act.Status.Terminal() {
			act.Status = store.ActionCancelled
			if err := m.store.SaveAction(ctx, act); err != nil {
				return swept, err
			}
		}
		swept++
	}

	if swept > 0 {
		slog.Info("Expired confirmations swept", "count", swept)
	}
	return swept, nil
}

func (m *Machine) ownedAction(ctx context.Context, actionID, tenantID, userID string) (store.AgentAction, error) {
	act, err := m.store.GetAction(ctx, actionID)
	if err != nil {
		return store.AgentAction{}, err
	}
	// Ownership failures look identical to missing actions so callers
	// cannot probe for other tenants' action ids.
	if act.TenantID != tenantID || act.UserID != userID {
		return store.AgentAction{}, featlyErrors.NotFound("action " + actionID)
	}
	return act, nil
}
