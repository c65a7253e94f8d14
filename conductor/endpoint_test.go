package conductor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"iotronic/config"
	"iotronic/registry"
	"iotronic/store"
	"iotronic/wamp"
)

type fakeCall struct {
	Topic     string
	Procedure string
	Args      []any
}

// fakeCaller records dispatches and answers with a canned envelope.
type fakeCaller struct {
	reply *wamp.Message
	err   error
	calls []fakeCall
}

func (f *fakeCaller) Call(ctx context.Context, topic, procedure string, args []any) (*wamp.Message, error) {
	f.calls = append(f.calls, fakeCall{Topic: topic, Procedure: procedure, Args: args})
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return wamp.NewSuccess("ok"), nil
}

func (f *fakeCaller) CallTimeout() time.Duration { return 50 * time.Millisecond }

func testEndpoint(t *testing.T) (*Endpoint, *store.DB, *fakeCaller) {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	caller := &fakeCaller{}
	reg := registry.New(db, nil, registry.NewRoundRobinSelector())
	deps := &Deps{
		DB:                db,
		Host:              "cond-a",
		Workers:           NewWorkerPool(4),
		LockRetryAttempts: 1,
		LockRetryInterval: time.Millisecond,
	}
	return NewEndpoint(db, caller, reg, deps), db, caller
}

func onlineBoard(t *testing.T, db *store.DB) *store.Board {
	t.Helper()
	b := &store.Board{UUID: "b-1", Code: "CODE-1", Name: "bench", Status: store.StatusOnline, Agent: "agent-1"}
	if err := db.CreateBoard(b); err != nil {
		t.Fatalf("seed board: %v", err)
	}
	return b
}

func TestEcho(t *testing.T) {
	ep, _, _ := testEndpoint(t)
	if got := ep.Echo("ping"); got != "ping" {
		t.Errorf("Echo = %q, want %q", got, "ping")
	}
}

func TestExecuteOnBoard(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	caller.reply = wamp.NewSuccess(map[string]any{"temp": 21.0})

	result, err := ep.ExecuteOnBoard(context.Background(), "b-1", "readSensor", []any{"temp"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	payload, ok := result.(map[string]any)
	if !ok || payload["temp"] != 21.0 {
		t.Errorf("result = %v", result)
	}

	if len(caller.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(caller.calls))
	}
	call := caller.calls[0]
	if call.Topic != "agent-1.s4t_invoke" {
		t.Errorf("Topic = %q, want agent-1.s4t_invoke", call.Topic)
	}
	if call.Procedure != "iotronic.b-1.readSensor" {
		t.Errorf("Procedure = %q, want iotronic.b-1.readSensor", call.Procedure)
	}
}

func TestExecuteOnBoardNotConnected(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	b := &store.Board{UUID: "b-1", Code: "CODE-1", Name: "bench", Status: store.StatusOffline, Agent: "agent-1"}
	db.CreateBoard(b)

	_, err := ep.ExecuteOnBoard(context.Background(), "b-1", "readSensor", nil)
	var notConnected *BoardNotConnectedError
	if !errors.As(err, &notConnected) {
		t.Fatalf("expected BoardNotConnectedError, got %v", err)
	}
	// No broker traffic for a board that is not online.
	if len(caller.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(caller.calls))
	}
}

func TestExecuteOnBoardErrorEnvelope(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	caller.reply = wamp.NewError("sensor exploded")

	_, err := ep.ExecuteOnBoard(context.Background(), "b-1", "readSensor", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if execErr.Message != "sensor exploded" {
		t.Errorf("Message = %q", execErr.Message)
	}
}

func TestExecuteOnBoardWarningIsSuccess(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	caller.reply = wamp.NewWarning("degraded but fine")

	result, err := ep.ExecuteOnBoard(context.Background(), "b-1", "readSensor", nil)
	if err != nil {
		t.Fatalf("warning should not fail: %v", err)
	}
	if result != "degraded but fine" {
		t.Errorf("result = %v", result)
	}
}

func TestExecuteOnBoardUnavailable(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	caller.err = wamp.ErrCallTimeout

	_, err := ep.ExecuteOnBoard(context.Background(), "b-1", "readSensor", nil)
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if !errors.Is(err, wamp.ErrCallTimeout) {
		t.Error("UnavailableError should wrap the transport error")
	}
}

func TestCreateBoard(t *testing.T) {
	ep, db, _ := testEndpoint(t)

	board, err := ep.CreateBoard(
		&store.Board{Code: "CODE-9", Name: "new-board"},
		&store.Location{Longitude: "15.08", Latitude: "37.50"},
	)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if board.UUID == "" {
		t.Error("UUID should be generated")
	}

	got, err := db.GetBoard(board.UUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.StatusRegistered {
		t.Errorf("Status = %q, want %q", got.Status, store.StatusRegistered)
	}
	loc, err := db.GetBoardLocation(got.ID)
	if err != nil {
		t.Fatalf("get location: %v", err)
	}
	if loc.Latitude != "37.50" {
		t.Errorf("Latitude = %q, want 37.50", loc.Latitude)
	}
}

func TestUpdateBoardKeepsCurrentStatus(t *testing.T) {
	ep, db, _ := testEndpoint(t)
	b := &store.Board{UUID: "b-1", Code: "CODE-1", Name: "bench", Status: store.StatusOffline}
	if err := db.CreateBoard(b); err != nil {
		t.Fatalf("seed board: %v", err)
	}

	stale, err := db.GetBoard("b-1")
	if err != nil {
		t.Fatalf("get board: %v", err)
	}

	// The board transitions between the caller's read and the update; the
	// stale snapshot must not roll the transition back.
	if err := db.UpdateBoardStatus("b-1", store.StatusOnline, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	stale.Name = "renamed"
	updated, err := ep.UpdateBoard(context.Background(), stale)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != store.StatusOnline {
		t.Errorf("returned Status = %q, want %q", updated.Status, store.StatusOnline)
	}

	got, _ := db.GetBoard("b-1")
	if got.Status != store.StatusOnline {
		t.Errorf("Status = %q, want %q preserved", got.Status, store.StatusOnline)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", got.Name)
	}
}

func TestDestroyBoardOffline(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	b := &store.Board{UUID: "b-1", Code: "CODE-1", Name: "bench", Status: store.StatusOffline}
	db.CreateBoard(b)

	if _, err := ep.DestroyBoard(context.Background(), "b-1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("offline destroy should not dispatch, calls = %d", len(caller.calls))
	}
	if _, err := db.GetBoard("b-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("board should be gone, got %v", err)
	}
}

func TestDestroyBoardOnlineDispatchesTeardown(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)

	if _, err := ep.DestroyBoard(context.Background(), "b-1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(caller.calls))
	}
	if caller.calls[0].Procedure != "iotronic.b-1.destroyBoard" {
		t.Errorf("Procedure = %q", caller.calls[0].Procedure)
	}
	if _, err := db.GetBoard("b-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("board should be gone, got %v", err)
	}
}

func TestInjectPluginUpsert(t *testing.T) {
	ep, db, _ := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x"})

	if _, err := ep.InjectPlugin(context.Background(), "p-1", "b-1", true); err != nil {
		t.Fatalf("inject: %v", err)
	}
	inj, err := db.GetInjection("b-1", "p-1")
	if err != nil {
		t.Fatalf("get injection: %v", err)
	}
	if inj.Status != store.InjectionInjected {
		t.Errorf("Status = %q, want %q", inj.Status, store.InjectionInjected)
	}
	if !inj.OnBoot {
		t.Error("OnBoot should be true")
	}

	// Re-injection flips the row to updated.
	if _, err := ep.InjectPlugin(context.Background(), "p-1", "b-1", false); err != nil {
		t.Fatalf("re-inject: %v", err)
	}
	inj, _ = db.GetInjection("b-1", "p-1")
	if inj.Status != store.InjectionUpdated {
		t.Errorf("Status = %q, want %q", inj.Status, store.InjectionUpdated)
	}
	if inj.OnBoot {
		t.Error("OnBoot should be false after re-injection")
	}
}

func TestRemovePluginNotInjected(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x"})

	_, err := ep.RemovePlugin(context.Background(), "p-1", "b-1")
	var notFound *InjectionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected InjectionNotFoundError, got %v", err)
	}
	// A missing injection fails before any dispatch.
	if len(caller.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(caller.calls))
	}
}

func TestRemovePlugin(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x"})
	db.CreateInjection(&store.InjectionPlugin{BoardUUID: "b-1", PluginUUID: "p-1"})

	if _, err := ep.RemovePlugin(context.Background(), "p-1", "b-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(caller.calls) != 1 || caller.calls[0].Procedure != "iotronic.b-1.PluginRemove" {
		t.Errorf("calls = %+v", caller.calls)
	}
	if _, err := db.GetInjection("b-1", "p-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("injection should be gone, got %v", err)
	}
}

func TestActionPluginWhitelist(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x"})

	_, err := ep.ActionPlugin(context.Background(), "p-1", "b-1", "PluginExplode", nil)
	var invalid *InvalidPluginActionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPluginActionError, got %v", err)
	}
	if len(caller.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(caller.calls))
	}
}

func TestActionPluginNoParamsRejectsParams(t *testing.T) {
	ep, db, _ := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x"})

	_, err := ep.ActionPlugin(context.Background(), "p-1", "b-1", "PluginReboot", map[string]any{"force": true})
	var bad *InvalidPluginParamsError
	if !errors.As(err, &bad) {
		t.Fatalf("expected InvalidPluginParamsError, got %v", err)
	}
}

func TestActionPluginUndeclaredParam(t *testing.T) {
	ep, db, _ := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{
		UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x",
		Parameters: map[string]any{"unit": "celsius"},
	})

	_, err := ep.ActionPlugin(context.Background(), "p-1", "b-1", "PluginCall", map[string]any{"scale": "kelvin"})
	var bad *InvalidPluginParamsError
	if !errors.As(err, &bad) {
		t.Fatalf("expected InvalidPluginParamsError, got %v", err)
	}
}

func TestActionPluginDispatch(t *testing.T) {
	ep, db, caller := testEndpoint(t)
	onlineBoard(t, db)
	db.CreatePlugin(&store.Plugin{
		UUID: "p-1", Name: "thermometer", Owner: "alice", Code: "x",
		Parameters: map[string]any{"unit": "celsius"},
	})

	// No-params action carries only the plugin uuid.
	if _, err := ep.ActionPlugin(context.Background(), "p-1", "b-1", "PluginStatus", nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	call := caller.calls[len(caller.calls)-1]
	if call.Procedure != "iotronic.b-1.PluginStatus" {
		t.Errorf("Procedure = %q", call.Procedure)
	}
	if len(call.Args) != 1 || call.Args[0] != "p-1" {
		t.Errorf("Args = %v, want [p-1]", call.Args)
	}

	// Declared params ride along for actions that accept them.
	params := map[string]any{"unit": "fahrenheit"}
	if _, err := ep.ActionPlugin(context.Background(), "p-1", "b-1", "PluginCall", params); err != nil {
		t.Fatalf("call: %v", err)
	}
	call = caller.calls[len(caller.calls)-1]
	if len(call.Args) != 2 {
		t.Fatalf("Args = %v, want [uuid params]", call.Args)
	}
	got, ok := call.Args[1].(map[string]any)
	if !ok || got["unit"] != "fahrenheit" {
		t.Errorf("params arg = %v", call.Args[1])
	}
}
