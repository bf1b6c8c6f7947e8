package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/featly/featly/internal/action"
	"github.com/featly/featly/internal/config"
	"github.com/featly/featly/internal/db"
	"github.com/featly/featly/internal/domain"
	"github.com/featly/featly/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*Dispatcher, *action.Machine, *store.Store, *domain.Memory) {
	t.Helper()
	gdb, err := db.Open("sqlite", filepath.Join(t.TempDir(), "featly.db"))
	require.NoError(t, err)
	st, err := store.New(gdb)
	require.NoError(t, err)
	machine, err := action.NewMachine(st, config.ConfirmationConfig{})
	require.NoError(t, err)

	mem := domain.NewMemory()
	return New(mem, machine), machine, st, mem
}

func request(functionName, params string) Request {
	return Request{
		TenantID:     "t1",
		UserID:       "u1",
		SessionID:    "s1",
		FunctionName: functionName,
		Parameters:   json.RawMessage(params),
	}
}

func approve(t *testing.T, machine *action.Machine, st *store.Store, actionID string) {
	t.Helper()
	confs, err := st.ListConfirmationsForAction(context.Background(), actionID)
	require.NoError(t, err)
	require.Len(t, confs, 1)
	_, err = machine.Respond(context.Background(), confs[0].ID, store.ResponseConfirmed, nil)
	require.NoError(t, err)
}

func TestExecuteValidationShortCircuits(t *testing.T) {
	d, _, _, mem := newDispatcher(t)
	ctx := context.Background()

	out := d.Execute(ctx, request("create_product", `{"description":"no name"}`))
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "missing required field: name")

	out = d.Execute(ctx, request("create_product", `{"name":42}`))
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "field name expects string")

	out = d.Execute(ctx, request("explode_product", `{}`))
	assert.False(t, out.Success)

	// Nothing invalid ever reaches the domain layer.
	assert.Zero(t, mem.Count("t1", domain.EntityProduct))
}

func TestExecuteSafeCallRunsImmediately(t *testing.T) {
	d, _, _, mem := newDispatcher(t)
	ctx := context.Background()

	res := mem.Create(ctx, "t1", domain.EntityProduct, json.RawMessage(`{"name":"Atlas"}`))
	require.True(t, res.Success)

	out := d.Execute(ctx, request("list_products", `{}`))
	assert.True(t, out.Success)
	assert.False(t, out.RequiresConfirmation)

	var listed []map[string]any
	require.NoError(t, json.Unmarshal(out.Data, &listed))
	assert.Len(t, listed, 1)
}

func TestExecuteDestructiveCallIsGated(t *testing.T) {
	d, _, st, mem := newDispatcher(t)
	ctx := context.Background()

	out := d.Execute(ctx, request("create_product", `{"name":"Atlas"}`))
	assert.False(t, out.Success)
	assert.True(t, out.RequiresConfirmation)
	require.NotEmpty(t, out.ActionID)
	assert.Contains(t, out.Message, ParamConfirmedActionID)

	// The domain layer was never touched.
	assert.Zero(t, mem.Count("t1", domain.EntityProduct))

	act, err := st.GetAction(ctx, out.ActionID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionPending, act.Status)
	assert.True(t, act.RequiresConfirmation)

	confs, err := st.ListConfirmationsForAction(ctx, out.ActionID)
	require.NoError(t, err)
	assert.Len(t, confs, 1)
}

func TestExecuteConfirmedResubmission(t *testing.T) {
	d, machine, st, mem := newDispatcher(t)
	ctx := context.Background()

	pending := d.Execute(ctx, request("create_product", `{"name":"Atlas"}`))
	require.True(t, pending.RequiresConfirmation)
	approve(t, machine, st, pending.ActionID)

	out := d.Execute(ctx, request("create_product",
		fmt.Sprintf(`{"name":"Atlas","confirmed_action_id":%q}`, pending.ActionID)))
	assert.True(t, out.Success)
	assert.Equal(t, 1, mem.Count("t1", domain.EntityProduct))

	act, err := st.GetAction(ctx, pending.ActionID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionCompleted, act.Status)
	assert.NotNil(t, act.CompletedAt)
}

func TestExecuteResubmissionWithoutApproval(t *testing.T) {
	d, _, _, mem := newDispatcher(t)
	ctx := context.Background()

	pending := d.Execute(ctx, request("delete_product", `{"id":"p1"}`))
	require.True(t, pending.RequiresConfirmation)

	// Resubmitting before the user answered must not execute.
	out := d.Execute(ctx, request("delete_product",
		fmt.Sprintf(`{"id":"p1","confirmed_action_id":%q}`, pending.ActionID)))
	assert.False(t, out.Success)
	assert.Zero(t, mem.Count("t1", domain.EntityProduct))
}

func TestExecuteRejectedActionNeverRuns(t *testing.T) {
	d, machine, st, mem := newDispatcher(t)
	ctx := context.Background()

	pending := d.Execute(ctx, request("create_product", `{"name":"Atlas"}`))
	confs, err := st.ListConfirmationsForAction(ctx, pending.ActionID)
	require.NoError(t, err)
	_, err = machine.Respond(ctx, confs[0].ID, store.ResponseRejected, nil)
	require.NoError(t, err)

	out := d.Execute(ctx, request("create_product",
		fmt.Sprintf(`{"name":"Atlas","confirmed_action_id":%q}`, pending.ActionID)))
	assert.False(t, out.Success)
	assert.Zero(t, mem.Count("t1", domain.EntityProduct))
}

func TestExecuteForeignActionIDRejected(t *testing.T) {
	d, machine, st, _ := newDispatcher(t)
	ctx := context.Background()

	pending := d.Execute(ctx, request("create_product", `{"name":"Atlas"}`))
	approve(t, machine, st, pending.ActionID)

	// Another user cannot ride on t1/u1's approval.
	req := request("create_product",
		fmt.Sprintf(`{"name":"Atlas","confirmed_action_id":%q}`, pending.ActionID))
	req.UserID = "u2"
	out := d.Execute(ctx, req)
	assert.False(t, out.Success)
}

func TestExecuteFailureRecordedOnAction(t *testing.T) {
	d, machine, st, _ := newDispatcher(t)
	ctx := context.Background()

	pending := d.Execute(ctx, request("delete_product", `{"id":"missing"}`))
	approve(t, machine, st, pending.ActionID)

	out := d.Execute(ctx, request("delete_product",
		fmt.Sprintf(`{"id":"missing","confirmed_action_id":%q}`, pending.ActionID)))
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)

	act, err := st.GetAction(ctx, pending.ActionID)
	require.NoError(t, err)
	assert.Equal(t, store.ActionFailed, act.Status)
	assert.Equal(t, out.Error, act.Error)
}

func TestFunctionsCoverEveryOperation(t *testing.T) {
	defs := Functions()
	assert.Len(t, defs, 25)

	byName := make(map[string]bool, len(defs))
	for _, def := range defs {
		byName[def.Name] = true
		require.NotNil(t, def.Parameters)
	}
	assert.True(t, byName["create_product"])
	assert.True(t, byName["list_roadmaps"])
	assert.True(t, byName["delete_requirement"])
}

func TestOutcomeJSON(t *testing.T) {
	out := Outcome{Success: false, RequiresConfirmation: true, ActionID: "a1", Message: "waiting"}
	encoded := out.JSON()
	assert.Contains(t, encoded, `"requires_confirmation":true`)
	assert.Contains(t, encoded, `"action_id":"a1"`)
}
