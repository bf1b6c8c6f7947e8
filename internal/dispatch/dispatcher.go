// Package dispatch routes validated assistant function calls: safe
// reads go straight to the domain layer, destructive writes pass
// through the confirmation machine first.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/featly/featly/internal/action"
	"github.com/featly/featly/internal/domain"
)

// Request is one function call proposed during a run.
type Request struct {
	TenantID     string
	UserID       string
	SessionID    string
	FunctionName string
	Parameters   json.RawMessage
}

// Outcome is the structured tool result fed back into the conversation.
// When RequiresConfirmation is set, ActionID names the pending action
// the model must echo back as confirmed_action_id once the user agrees.
type Outcome struct {
	Success              bool            `json:"success"`
	Data                 json.RawMessage `json:"data,omitempty"`
	Error                string          `json:"error,omitempty"`
	RequiresConfirmation bool            `json:"requires_confirmation,omitempty"`
	ActionID             string          `json:"action_id,omitempty"`
	Message              string          `json:"message,omitempty"`
}

// JSON renders the outcome as the tool output string.
func (o Outcome) JSON() string {
	encoded, err := json.Marshal(o)
	if err != nil {
		return `{"success":false,"error":"encode tool outcome"}`
	}
	return string(encoded)
}

type Dispatcher struct {
	domain  domain.Collaborator
	machine *action.Machine
}

func New(collaborator domain.Collaborator, machine *action.Machine) *Dispatcher {
	return &Dispatcher{domain: collaborator, machine: machine}
}

// Execute validates, gates, and runs one function call. Failures are
// reported inside the outcome; the conversation continues either way.
func (d *Dispatcher) Execute(ctx context.Context, req Request) Outcome {
	params, err := validateParams(req.FunctionName, req.Parameters)
	if err != nil {
		return Outcome{Success: false, Error: err.Error()}
	}

	op, entity, err := action.ParseFunction(req.FunctionName)
	if err != nil {
		return Outcome{Success: false, Error: err.Error()}
	}

	if !op.Destructive() {
		res := d.route(ctx, req.TenantID, op, entity, params)
		return fromResult(res)
	}

	if actionID, ok := params[ParamConfirmedActionID].(string); ok && actionID != "" {
		return d.executeConfirmed(ctx, req, actionID, op, entity, params)
	}
	return d.propose(ctx, req, entity)
}

// propose records the destructive call as a pending action, raises its
// confirmation dialog, and tells the model to wait for the user.
func (d *Dispatcher) propose(ctx context.Context, req Request, entity domain.EntityType) Outcome {
	act, err := d.machine.Propose(ctx, action.ProposeInput{
		TenantID:     req.TenantID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		FunctionName: req.FunctionName,
		Parameters:   req.Parameters,
	})
	if err != nil {
		return Outcome{Success: false, Error: "record action: " + err.Error()}
	}

	if _, err := d.machine.CreateConfirmation(ctx, req.TenantID, req.UserID, action.ConfirmationInput{
		ActionID:   act.ID,
		DialogType: "confirm",
		Title:      fmt.Sprintf("Confirm %s %s", act.OperationType, entity),
		Message:    fmt.Sprintf("The agent wants to run %s. Approve to continue.", req.FunctionName),
		Details:    req.Parameters,
	}); err != nil {
		return Outcome{Success: false, Error: "create confirmation: " + err.Error()}
	}

	slog.Info("Function call awaiting confirmation",
		"tenant", req.TenantID, "function", req.FunctionName, "action", act.ID)
	return Outcome{
		Success:              false,
		RequiresConfirmation: true,
		ActionID:             act.ID,
		Message: fmt.Sprintf(
			"This operation needs user confirmation. Once the user approves, call %s again with the same parameters plus %q set to %q.",
			req.FunctionName, ParamConfirmedActionID, act.ID),
	}
}

// executeConfirmed runs a resubmitted call whose action the user has
// already approved, and records the result on that action.
func (d *Dispatcher) executeConfirmed(ctx context.Context, req Request, actionID string, op action.Operation, entity domain.EntityType, params map[string]any) Outcome {
	if _, err := d.machine.ConfirmedAction(ctx, actionID, req.TenantID, req.UserID, req.FunctionName); err != nil {
		return Outcome{Success: false, Error: err.Error()}
	}

	delete(params, ParamConfirmedActionID)
	res := d.route(ctx, req.TenantID, op, entity, params)

	if res.Success {
		if err := d.machine.MarkCompleted(ctx, actionID, res.Data); err != nil {
			slog.Error("Action completion not recorded", "action", actionID, "error", err)
		}
	} else {
		if err := d.machine.MarkFailed(ctx, actionID, res.Error); err != nil {
			slog.Error("Action failure not recorded", "action", actionID, "error", err)
		}
	}
	return fromResult(res)
}

func (d *Dispatcher) route(ctx context.Context, tenantID string, op action.Operation, entity domain.EntityType, params map[string]any) domain.Result {
	switch op {
	case action.OpCreate:
		return d.domain.Create(ctx, tenantID, entity, encodeAttrs(params))
	case action.OpUpdate:
		id, _ := params["id"].(string)
		delete(params, "id")
		return d.domain.Update(ctx, tenantID, entity, id, encodeAttrs(params))
	case action.OpDelete:
		id, _ := params["id"].(string)
		return d.domain.Delete(ctx, tenantID, entity, id)
	case action.OpGet:
		id, _ := params["id"].(string)
		return d.domain.Get(ctx, tenantID, entity, id)
	case action.OpList:
		return d.domain.List(ctx, tenantID, entity)
	}
	return domain.Fail("unknown operation " + string(op))
}

func fromResult(res domain.Result) Outcome {
	return Outcome{Success: res.Success, Data: res.Data, Error: res.Error}
}

func encodeAttrs(params map[string]any) json.RawMessage {
	encoded, err := json.Marshal(params)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return encoded
}
