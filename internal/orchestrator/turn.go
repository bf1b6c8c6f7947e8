// Package orchestrator drives one conversational turn: it resolves the
// session's thread and the tenant's assistant, appends the user
// message, runs the assistant, and round-trips proposed function calls
// through the dispatcher until the run completes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/dispatch"
	featlyErrors "github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/store"
)

// AssistantResolver yields the tenant's assistant id.
type AssistantResolver interface {
	Resolve(ctx context.Context, tenantID string) (string, error)
}

type Orchestrator struct {
	client     provider.Client
	store      *store.Store
	resolver   AssistantResolver
	dispatcher *dispatch.Dispatcher

	pollInterval    time.Duration
	maxPollAttempts int
	maxToolRounds   int
}

func New(client provider.Client, st *store.Store, resolver AssistantResolver, dispatcher *dispatch.Dispatcher, cfg config.ChatConfig) (*Orchestrator, error) {
	pollInterval, err := config.DurationOrDefault(cfg.RunPollInterval, config.DefaultChatRunPollInterval)
	if err != nil {
		return nil, fmt.Errorf("parse run poll interval: %w", err)
	}

	maxAttempts := cfg.MaxRunPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultChatMaxRunPollAttempts
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = config.DefaultChatMaxToolRounds
	}

	return &Orchestrator{
		client:          client,
		store:           st,
		resolver:        resolver,
		dispatcher:      dispatcher,
		pollInterval:    pollInterval,
		maxPollAttempts: maxAttempts,
		maxToolRounds:   maxRounds,
	}, nil
}

// TurnInput is one inbound user message.
type TurnInput struct {
	TenantID string
	UserID   string
	Mode     store.SessionMode
	Message  string
}

// TurnResult is what the caller gets back after the run settles.
type TurnResult struct {
	SessionID  string
	ThreadID   string
	RunID      string
	Reply      string
	ToolRounds int
}

// RunTurn executes one full conversational turn. The thread lookup and
// the assistant resolution are independent remote calls and run in
// parallel.
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput) (TurnResult, error) {
	if strings.TrimSpace(in.Message) == "" {
		return TurnResult{}, featlyErrors.Validation("message is empty")
	}
	mode := in.Mode
	if mode == "" {
		mode = store.ModeAgent
	}

	var (
		session     store.AgentSession
		assistantID string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		session, err = o.resumeSession(gctx, in.TenantID, in.UserID, mode)
		return err
	})
	g.Go(func() error {
		var err error
		assistantID, err = o.resolver.Resolve(gctx, in.TenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return TurnResult{}, err
	}

	result := TurnResult{SessionID: session.ID, ThreadID: session.ThreadID}

	if _, err := o.client.CreateUserMessage(ctx, session.ThreadID, in.Message); err != nil {
		return result, err
	}

	run, err := o.client.CreateRun(ctx, session.ThreadID, assistantID)
	if err != nil {
		return result, err
	}
	result.RunID = run.ID

	run, rounds, err := o.awaitRun(ctx, in, session, run)
	result.ToolRounds = rounds
	if err != nil {
		return result, err
	}
	if run.Status != provider.RunCompleted {
		return result, featlyErrors.Wrap(featlyErrors.ErrInternal,
			fmt.Sprintf("run %s ended %s: %s", run.ID, run.Status, run.LastError))
	}

	reply, err := o.latestReply(ctx, session.ThreadID)
	if err != nil {
		return result, err
	}
	result.Reply = reply

	slog.Info("Turn completed",
		"tenant", in.TenantID,
		"session", session.ID,
		"run", run.ID,
		"tool_rounds", rounds)
	return result, nil
}

// awaitRun polls the run to a terminal state, dispatching tool calls
// whenever it pauses on requires_action. Both the poll count and the
// number of tool rounds are bounded; hitting either ceiling fails
// closed with a timeout error instead of waiting forever.
func (o *Orchestrator) awaitRun(ctx context.Context, in TurnInput, session store.AgentSession, run provider.Run) (provider.Run, int, error) {
	rounds := 0

	for attempt := 0; attempt < o.maxPollAttempts; attempt++ {
		switch run.Status {
		case provider.RunCompleted, provider.RunFailed, provider.RunCancelled, provider.RunExpired:
			return run, rounds, nil

		case provider.RunRequiresAction:
			if rounds >= o.maxToolRounds {
				return run, rounds, featlyErrors.Wrap(featlyErrors.ErrRunTimeout,
					fmt.Sprintf("run %s exceeded %d tool rounds", run.ID, o.maxToolRounds))
			}
			rounds++

			outputs := make([]provider.ToolOutput, 0, len(run.ToolCalls))
			for _, call := range run.ToolCalls {
				outcome := o.dispatcher.Execute(ctx, dispatch.Request{
					TenantID:     in.TenantID,
					UserID:       in.UserID,
					SessionID:    session.ID,
					FunctionName: call.Name,
					Parameters:   call.Arguments,
				})
				outputs = append(outputs, provider.ToolOutput{
					ToolCallID: call.ID,
					Output:     outcome.JSON(),
				})
			}

			next, err := o.client.SubmitToolOutputs(ctx, session.ThreadID, run.ID, outputs)
			if err != nil {
				return run, rounds, err
			}
			run = next

		case provider.RunQueued, provider.RunInProgress:
			select {
			case <-ctx.Done():
				return run, rounds, ctx.Err()
			case <-time.After(o.pollInterval):
			}
			next, err := o.client.RetrieveRun(ctx, session.ThreadID, run.ID)
			if err != nil {
				if featlyErrors.IsRetryable(err) {
					continue
				}
				return run, rounds, err
			}
			run = next

		default:
			return run, rounds, featlyErrors.Internal(
				fmt.Sprintf("run %s reported unknown status %s", run.ID, run.Status))
		}
	}

	return run, rounds, featlyErrors.Wrap(featlyErrors.ErrRunTimeout,
		fmt.Sprintf("run %s still %s after %d polls", run.ID, run.Status, o.maxPollAttempts))
}

// resumeSession returns the caller's session for the mode, creating the
// provider thread and the session row on first contact.
func (o *Orchestrator) resumeSession(ctx context.Context, tenantID, userID string, mode store.SessionMode) (store.AgentSession, error) {
	session, err := o.store.GetSession(ctx, tenantID, userID, mode)
	switch {
	case err == nil:
		if session.Status == store.SessionActive && session.ThreadID != "" {
			return session, nil
		}
	case !errors.Is(err, featlyErrors.ErrNotFound):
		return store.AgentSession{}, err
	}

	thread, err := o.client.CreateThread(ctx)
	if err != nil {
		return store.AgentSession{}, err
	}

	if session.ID == "" {
		session.ID = ulid.Make().String()
	}
	session.TenantID = tenantID
	session.UserID = userID
	session.Mode = mode
	session.ThreadID = thread.ID
	session.Status = store.SessionActive
	if err := o.store.SaveSession(ctx, session); err != nil {
		return store.AgentSession{}, err
	}

	slog.Info("Session started", "tenant", tenantID, "session", session.ID, "mode", mode)
	return session, nil
}

// latestReply returns the newest assistant message text on the thread.
func (o *Orchestrator) latestReply(ctx context.Context, threadID string) (string, error) {
	messages, err := o.client.ListMessages(ctx, threadID, 10)
	if err != nil {
		return "", err
	}
	for _, msg := range messages {
		if msg.Role == "assistant" {
			return msg.Text, nil
		}
	}
	return "", nil
}

// CloseSession marks the caller's session closed; the next turn in the
// same mode starts a fresh thread.
func (o *Orchestrator) CloseSession(ctx context.Context, tenantID, userID string, mode store.SessionMode) error {
	session, err := o.store.GetSession(ctx, tenantID, userID, mode)
	if err != nil {
		return err
	}
	session.Status = store.SessionClosed
	return o.store.SaveSession(ctx, session)
}
