package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/featly/featly/internal/action"
	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/db"
	"github.com/featly/featly/internal/dispatch"
	"github.com/featly/featly/internal/domain"
	"github.com/featly/featly/internal/errors"
	"github.com/featly/featly/internal/provider"
	"github.com/featly/featly/internal/provider/providertest"
	"github.com/featly/featly/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver string

func (r staticResolver) Resolve(ctx context.Context, tenantID string) (string, error) {
	return string(r), nil
}

func newOrchestrator(t *testing.T, fake *providertest.Fake) (*Orchestrator, *store.Store, *domain.Memory) {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "featly.db"))
	require.NoError(t, err)
	st, err := store.New(gdb)
	require.NoError(t, err)
	machine, err := action.NewMachine(st, config.ConfirmationConfig{})
	require.NoError(t, err)

	mem := domain.NewMemory()
	fake.Seed(provider.Assistant{ID: "asst_live"})

	o, err := New(fake, st, staticResolver("asst_live"), dispatch.New(mem, machine),
		config.ChatConfig{RunPollInterval: "1ms", MaxRunPollAttempts: 5, MaxToolRounds: 2})
	require.NoError(t, err)
	return o, st, mem
}

func turn(tenantID, userID, message string) TurnInput {
	return TurnInput{TenantID: tenantID, UserID: userID, Mode: store.ModeAgent, Message: message}
}

func TestRunTurnSimpleReply(t *testing.T) {
	fake := providertest.NewFake()
	fake.AssistantReply = "You have no products yet."
	o, st, _ := newOrchestrator(t, fake)

	result, err := o.RunTurn(context.Background(), turn("t1", "u1", "What products do we have?"))
	require.NoError(t, err)

	assert.Equal(t, "You have no products yet.", result.Reply)
	assert.NotEmpty(t, result.SessionID)
	assert.NotEmpty(t, result.ThreadID)
	assert.Zero(t, result.ToolRounds)

	session, err := st.GetSession(context.Background(), "t1", "u1", store.ModeAgent)
	require.NoError(t, err)
	assert.Equal(t, result.ThreadID, session.ThreadID)
	assert.Equal(t, store.SessionActive, session.Status)
}

func TestRunTurnReusesSessionThread(t *testing.T) {
	fake := providertest.NewFake()
	fake.AssistantReply = "ok"
	o, _, _ := newOrchestrator(t, fake)
	ctx := context.Background()

	first, err := o.RunTurn(ctx, turn("t1", "u1", "hello"))
	require.NoError(t, err)
	second, err := o.RunTurn(ctx, turn("t1", "u1", "again"))
	require.NoError(t, err)

	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, fake.Calls["CreateThread"])
}

func TestRunTurnExecutesSafeToolCall(t *testing.T) {
	fake := providertest.NewFake()
	fake.AssistantReply = "Here is the list."
	fake.RunSequence = []provider.Run{
		{Status: provider.RunRequiresAction, ToolCalls: []provider.ToolCall{
			{ID: "tc1", Name: "list_products", Arguments: json.RawMessage(`{}`)},
		}},
		{Status: provider.RunCompleted},
	}
	o, _, mem := newOrchestrator(t, fake)

	res := mem.Create(context.Background(), "t1", domain.EntityProduct, json.RawMessage(`{"name":"Atlas"}`))
	require.True(t, res.Success)

	result, err := o.RunTurn(context.Background(), turn("t1", "u1", "list products"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.ToolRounds)
	assert.Equal(t, 1, fake.Calls["SubmitToolOutputs"])
	assert.Equal(t, "Here is the list.", result.Reply)
}

func TestRunTurnGatesDestructiveToolCall(t *testing.T) {
	fake := providertest.NewFake()
	fake.AssistantReply = "I need your approval first."
	fake.RunSequence = []provider.Run{
		{Status: provider.RunRequiresAction, ToolCalls: []provider.ToolCall{
			{ID: "tc1", Name: "create_product", Arguments: json.RawMessage(`{"name":"Atlas"}`)},
		}},
		{Status: provider.RunCompleted},
	}
	o, st, mem := newOrchestrator(t, fake)

	result, err := o.RunTurn(context.Background(), turn("t1", "u1", "create product Atlas"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolRounds)

	// The gated call never reached the domain layer; a pending action
	// with its confirmation dialog exists instead.
	assert.Zero(t, mem.Count("t1", domain.EntityProduct))

	actions, err := st.ListActions(context.Background(), "t1", "u1", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, store.ActionPending, actions[0].Status)
	assert.True(t, actions[0].RequiresConfirmation)
}

func TestRunTurnPollTimeout(t *testing.T) {
	fake := providertest.NewFake()
	fake.RunSequence = []provider.Run{{Status: provider.RunInProgress}}
	o, _, _ := newOrchestrator(t, fake)

	_, err := o.RunTurn(context.Background(), turn("t1", "u1", "hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRunTimeout)
}

func TestRunTurnToolRoundCeiling(t *testing.T) {
	fake := providertest.NewFake()
	// The model keeps asking for tools; the last sequence element
	// repeats, so requires_action never clears.
	fake.RunSequence = []provider.Run{
		{Status: provider.RunRequiresAction, ToolCalls: []provider.ToolCall{
			{ID: "tc1", Name: "list_products", Arguments: json.RawMessage(`{}`)},
		}},
	}
	o, _, _ := newOrchestrator(t, fake)

	result, err := o.RunTurn(context.Background(), turn("t1", "u1", "loop"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRunTimeout)
	assert.Equal(t, 2, result.ToolRounds)
}

func TestRunTurnFailedRun(t *testing.T) {
	fake := providertest.NewFake()
	fake.RunSequence = []provider.Run{{Status: provider.RunFailed, LastError: "rate_limit_exceeded"}}
	o, _, _ := newOrchestrator(t, fake)

	_, err := o.RunTurn(context.Background(), turn("t1", "u1", "hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestRunTurnEmptyMessage(t *testing.T) {
	o, _, _ := newOrchestrator(t, providertest.NewFake())

	_, err := o.RunTurn(context.Background(), turn("t1", "u1", "   "))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestCloseSessionStartsFreshThread(t *testing.T) {
	fake := providertest.NewFake()
	fake.AssistantReply = "ok"
	o, _, _ := newOrchestrator(t, fake)
	ctx := context.Background()

	first, err := o.RunTurn(ctx, turn("t1", "u1", "hello"))
	require.NoError(t, err)
	require.NoError(t, o.CloseSession(ctx, "t1", "u1", store.ModeAgent))

	second, err := o.RunTurn(ctx, turn("t1", "u1", "hello again"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, first.SessionID, second.SessionID)
}
