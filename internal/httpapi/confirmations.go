package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/featly/featly/internal/action"
	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/store"
)

type confirmationView struct {
	ID              string          `json:"id"`
	ActionID        string          `json:"action_id"`
	DialogType      string          `json:"dialog_type"`
	Title           string          `json:"title"`
	Message         string          `json:"message"`
	Details         json.RawMessage `json:"details,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Response        string          `json:"response,omitempty"`
	ResponseDetails json.RawMessage `json:"response_details,omitempty"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toConfirmationView(rec store.Confirmation) confirmationView {
	return confirmationView{
		ID:              rec.ID,
		ActionID:        rec.ActionID,
		DialogType:      rec.DialogType,
		Title:           rec.Title,
		Message:         rec.Message,
		Details:         rec.Details,
		ExpiresAt:       rec.ExpiresAt,
		Response:        string(rec.Response),
		ResponseDetails: rec.ResponseDetails,
		RespondedAt:     rec.RespondedAt,
		CreatedAt:       rec.CreatedAt,
	}
}

type actionView struct {
	ID                   string          `json:"id"`
	FunctionName         string          `json:"function_name"`
	Parameters           json.RawMessage `json:"parameters,omitempty"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	EntityType           string          `json:"entity_type,omitempty"`
	OperationType        string          `json:"operation_type,omitempty"`
	Status               string          `json:"status"`
	Result               json.RawMessage `json:"result,omitempty"`
	Error                string          `json:"error,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	ConfirmedAt          *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

func toActionView(rec store.AgentAction) actionView {
	return actionView{
		ID:                   rec.ID,
		FunctionName:         rec.FunctionName,
		Parameters:           rec.Parameters,
		RequiresConfirmation: rec.RequiresConfirmation,
		EntityType:           rec.EntityType,
		OperationType:        rec.OperationType,
		Status:               string(rec.Status),
		Result:               rec.Result,
		Error:                rec.Error,
		CreatedAt:            rec.CreatedAt,
		ConfirmedAt:          rec.ConfirmedAt,
		CompletedAt:          rec.CompletedAt,
	}
}

func (s *Server) listPendingConfirmations(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	pending, err := s.store.ListPendingConfirmations(r.Context(), caller.TenantID, caller.UserID, time.Now().UTC())
	if err != nil {
		Fail(w, err)
		return
	}

	views := make([]confirmationView, 0, len(pending))
	for _, rec := range pending {
		views = append(views, toConfirmationView(rec))
	}
	JSON(w, http.StatusOK, map[string]any{"confirmations": views})
}

// getAction returns one action with its confirmations. An action owned
// by someone else is indistinguishable from a missing one.
func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	actionID := chi.URLParam(r, "actionID")

	act, err := s.store.GetAction(r.Context(), actionID)
	if err != nil {
		Fail(w, err)
		return
	}
	if act.TenantID != caller.TenantID || act.UserID != caller.UserID {
		Fail(w, featlyErrors.NotFound("action "+actionID))
		return
	}

	confs, err := s.store.ListConfirmationsForAction(r.Context(), actionID)
	if err != nil {
		Fail(w, err)
		return
	}
	views := make([]confirmationView, 0, len(confs))
	for _, rec := range confs {
		views = append(views, toConfirmationView(rec))
	}
	JSON(w, http.StatusOK, map[string]any{
		"action":        toActionView(act),
		"confirmations": views,
	})
}

type createConfirmationRequest struct {
	ActionID      string          `json:"action_id"`
	DialogType    string          `json:"dialog_type"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	Details       json.RawMessage `json:"details,omitempty"`
	ExpiresInMins int             `json:"expires_in_minutes,omitempty"`
}

func (s *Server) createConfirmation(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req createConfirmationRequest
	if err := decodeBody(r, &req); err != nil {
		Fail(w, err)
		return
	}
	if req.ActionID == "" {
		Error(w, http.StatusBadRequest, "action_id is required")
		return
	}

	conf, err := s.machine.CreateConfirmation(r.Context(), caller.TenantID, caller.UserID, action.ConfirmationInput{
		ActionID:      req.ActionID,
		DialogType:    req.DialogType,
		Title:         req.Title,
		Message:       req.Message,
		Details:       req.Details,
		ExpiresInMins: req.ExpiresInMins,
	})
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusCreated, toConfirmationView(conf))
}

type respondRequest struct {
	Response string          `json:"response"`
	Details  json.RawMessage `json:"details,omitempty"`
}

func (s *Server) respondConfirmation(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	confirmationID := chi.URLParam(r, "confirmationID")

	var req respondRequest
	if err := decodeBody(r, &req); err != nil {
		Fail(w, err)
		return
	}

	// Ownership runs through the owning action; foreign confirmations
	// read as missing.
	conf, err := s.store.GetConfirmation(r.Context(), confirmationID)
	if err != nil {
		Fail(w, err)
		return
	}
	act, err := s.store.GetAction(r.Context(), conf.ActionID)
	if err != nil {
		Fail(w, err)
		return
	}
	if act.TenantID != caller.TenantID || act.UserID != caller.UserID {
		Fail(w, featlyErrors.NotFound("confirmation "+confirmationID))
		return
	}

	answered, err := s.machine.Respond(r.Context(), confirmationID, store.ConfirmationResponse(req.Response), req.Details)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, toConfirmationView(answered))
}

func (s *Server) sweepExpired(w http.ResponseWriter, r *http.Request) {
	swept, err := s.machine.CleanupExpired(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"swept": swept})
}
