package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/featly/featly/internal/logger"
	"github.com/featly/featly/internal/orchestrator"
	"github.com/featly/featly/internal/store"
)

func (s *Server) syncTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		Error(w, http.StatusBadRequest, "tenant id is required")
		return
	}

	result, err := s.pipeline.Sync(r.Context(), tenantID)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"tenant_id":     result.TenantID,
		"skipped":       result.Skipped,
		"file_id":       result.FileID,
		"item_count":    result.ItemCount,
		"char_count":    result.CharCount,
		"removed_files": result.RemovedFiles,
	})
}

type reconcileRequest struct {
	DryRun bool `json:"dry_run"`
}

func (s *Server) runReconcile(w http.ResponseWriter, r *http.Request) {
	req := reconcileRequest{DryRun: true}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			Fail(w, err)
			return
		}
	}

	report, err := s.reconciler.Run(r.Context(), req.DryRun)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}

type chatRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerIdentity(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		Fail(w, err)
		return
	}

	result, err := s.orchestrator.RunTurn(r.Context(), orchestratorInput(caller, req))
	if err != nil {
		slog.Error("Chat turn failed",
			"trace", logger.GetTraceID(r.Context()),
			"tenant", logger.GetTenantID(r.Context()),
			"error", err)
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"session_id":  result.SessionID,
		"thread_id":   result.ThreadID,
		"run_id":      result.RunID,
		"reply":       result.Reply,
		"tool_rounds": result.ToolRounds,
	})
}

func orchestratorInput(caller identity, req chatRequest) orchestrator.TurnInput {
	mode := store.SessionMode(req.Mode)
	if mode != store.ModeAsk && mode != store.ModeAgent {
		mode = store.ModeAgent
	}
	return orchestrator.TurnInput{
		TenantID: caller.TenantID,
		UserID:   caller.UserID,
		Mode:     mode,
		Message:  req.Message,
	}
}
