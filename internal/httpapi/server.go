package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/featly/featly/internal/action"
	"github.com/featly/featly/internal/corpus"
	"github.com/featly/featly/internal/logger"
	"github.com/featly/featly/internal/orchestrator"
	"github.com/featly/featly/internal/reconcile"
	"github.com/featly/featly/internal/store"
)

// Reconciler runs one consistency pass over the tracking stores.
type Reconciler interface {
	Run(ctx context.Context, dryRun bool) (reconcile.Report, error)
}

// Server wires the orchestration components behind the HTTP surface.
type Server struct {
	store        *store.Store
	machine      *action.Machine
	pipeline     *corpus.Pipeline
	reconciler   Reconciler
	orchestrator *orchestrator.Orchestrator
}

func NewServer(st *store.Store, machine *action.Machine, pipeline *corpus.Pipeline, reconciler Reconciler, orch *orchestrator.Orchestrator) *Server {
	return &Server{
		store:        st,
		machine:      machine,
		pipeline:     pipeline,
		reconciler:   reconciler,
		orchestrator: orch,
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(requestContext)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/confirmations", s.listPendingConfirmations)
		r.Post("/confirmations", s.createConfirmation)
		r.Patch("/confirmations/{confirmationID}", s.respondConfirmation)
		r.Delete("/confirmations/expired", s.sweepExpired)

		r.Get("/actions/{actionID}", s.getAction)

		r.Post("/tenants/{tenantID}/sync", s.syncTenant)
		r.Post("/reconcile", s.runReconcile)
		r.Post("/chat", s.chat)
	})

	return r
}

// requestContext stamps the request id and the caller's tenant into the
// context so downstream log lines can carry them.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithTraceID(r.Context(), chiMiddleware.GetReqID(r.Context()))
		if tenant := r.Header.Get(headerTenantID); tenant != "" {
			ctx = logger.WithTenantID(ctx, tenant)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
