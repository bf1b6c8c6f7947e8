package main

import (
	"fmt"

	"github.com/featly/featly/internal/action"
	"github.com/featly/featly/internal/assistant"
	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/corpus"
	"github.com/featly/featly/internal/db"
	"github.com/featly/featly/internal/dispatch"
	"github.com/featly/featly/internal/domain"
	"github.com/featly/featly/internal/orchestrator"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/reconcile"
	"github.com/featly/featly/internal/store"
)

// components is the wired object graph shared by every command.
type components struct {
	store        *store.Store
	client       provider.Client
	manager      *assistant.Manager
	pipeline     *corpus.Pipeline
	machine      *action.Machine
	dispatcher   *dispatch.Dispatcher
	orchestrator *orchestrator.Orchestrator
	reconciler   *reconcile.Reconciler
}

func buildComponents(cfg *config.Config) (*components, error) {
	gdb, err := db.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st, err := store.New(gdb)
	if err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	client, err := provider.NewOpenAI(cfg.Provider)
	if err != nil {
		return nil, err
	}

	manager, err := assistant.NewManager(client, st, cfg.Assistant, dispatch.Functions())
	if err != nil {
		return nil, err
	}

	// The domain CRUD layer lives in the wider application; standalone
	// runs use the in-memory collaborator.
	collaborator := domain.NewMemory()

	pipeline, err := corpus.NewPipeline(client, st, corpus.NewExporter(collaborator), manager, cfg.Sync)
	if err != nil {
		return nil, err
	}

	machine, err := action.NewMachine(st, cfg.Confirmation)
	if err != nil {
		return nil, err
	}
	dispatcher := dispatch.New(collaborator, machine)

	orch, err := orchestrator.New(client, st, manager, dispatcher, cfg.Chat)
	if err != nil {
		return nil, err
	}

	return &components{
		store:        st,
		client:       client,
		manager:      manager,
		pipeline:     pipeline,
		machine:      machine,
		dispatcher:   dispatcher,
		orchestrator: orch,
		reconciler:   reconcile.New(client, st, manager),
	}, nil
}
