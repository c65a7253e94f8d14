package conductor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"iotronic/registry"
	"iotronic/store"
	"iotronic/wamp"
)

// Plugin action whitelist. PluginCall and PluginStart accept caller-supplied
// parameters; PluginStatus and PluginReboot take none.
var pluginActions = map[string]bool{
	"PluginCall":   true,
	"PluginStop":   true,
	"PluginStart":  true,
	"PluginStatus": true,
	"PluginReboot": true,
}

var pluginCustomParams = map[string]bool{
	"PluginCall":  true,
	"PluginStart": true,
}

var pluginNoParams = map[string]bool{
	"PluginStatus": true,
	"PluginReboot": true,
}

// Caller is the synchronous dispatch primitive the endpoint needs from the
// broker client. Satisfied by *wamp.Client; tests substitute a fake.
type Caller interface {
	Call(ctx context.Context, topic, procedure string, args []any) (*wamp.Message, error)
	CallTimeout() time.Duration
}

// Endpoint is the conductor's public operation surface: board and plugin
// orchestration plus generic remote dispatch. All collaborators are injected.
type Endpoint struct {
	db       *store.DB
	client   Caller
	registry *registry.Registry
	tasks    *Deps
}

func NewEndpoint(db *store.DB, client Caller, reg *registry.Registry, tasks *Deps) *Endpoint {
	return &Endpoint{db: db, client: client, registry: reg, tasks: tasks}
}

// Echo returns its argument. Connectivity check for the control plane.
func (e *Endpoint) Echo(data string) string {
	log.Printf("endpoint: echo %q", data)
	return data
}

// ExecuteOnBoard dispatches a remote procedure to a board through its
// assigned agent and interprets the reply envelope. The board must be ONLINE;
// anything else fails before any broker traffic.
func (e *Endpoint) ExecuteOnBoard(ctx context.Context, boardUUID, procedure string, args []any) (any, error) {
	board, err := e.db.GetBoard(boardUUID)
	if err != nil {
		return nil, err
	}
	return e.executeOn(ctx, board, procedure, args)
}

func (e *Endpoint) executeOn(ctx context.Context, board *store.Board, procedure string, args []any) (any, error) {
	if !board.IsOnline() {
		return nil, &BoardNotConnectedError{BoardUUID: board.UUID}
	}

	topic := wamp.DispatchTopic(board.Agent)
	fqn := wamp.ProcedureFQN(board.UUID, procedure)
	log.Printf("endpoint: executing %s on board %s via %s", procedure, board.UUID, topic)

	cctx, cancel := context.WithTimeout(ctx, e.client.CallTimeout())
	defer cancel()
	res, err := e.client.Call(cctx, topic, fqn, args)
	if err != nil {
		return nil, &UnavailableError{BoardUUID: board.UUID, Procedure: procedure, Err: err}
	}

	switch res.Result {
	case wamp.ResultSuccess:
		return res.Message, nil
	case wamp.ResultWarning:
		log.Printf("endpoint: warning executing %s on %s: %v", procedure, board.UUID, res.Message)
		return res.Message, nil
	default:
		return nil, &ExecutionError{
			BoardUUID: board.UUID,
			Procedure: procedure,
			Message:   fmt.Sprint(res.Message),
		}
	}
}

// CreateBoard persists a new board and its location. A missing uuid is
// generated; status starts at REGISTERED.
func (e *Endpoint) CreateBoard(board *store.Board, loc *store.Location) (*store.Board, error) {
	if board.UUID == "" {
		board.UUID = uuid.New().String()
	}
	log.Printf("endpoint: creating board %s (%s)", board.Name, board.UUID)
	if err := e.db.CreateBoard(board); err != nil {
		return nil, err
	}
	loc.BoardID = board.ID
	if err := e.db.CreateLocation(loc); err != nil {
		return nil, err
	}
	e.registry.MarkBoardStatus(context.Background(), board.UUID, board.Status)
	return board, nil
}

// UpdateBoard saves board mutations under the exclusive board lock. The
// caller's copy may predate the lock, so its fields are applied onto the
// locked snapshot; status and target_status belong to the state machine and
// are never taken from the caller.
func (e *Endpoint) UpdateBoard(ctx context.Context, board *store.Board) (*store.Board, error) {
	task, err := Acquire(ctx, e.tasks, board.UUID, false)
	if err != nil {
		return nil, err
	}
	defer task.Release()

	fresh := task.Board
	fresh.Code = board.Code
	fresh.Name = board.Name
	fresh.Type = board.Type
	fresh.Agent = board.Agent
	fresh.Owner = board.Owner
	fresh.Project = board.Project
	fresh.Mobile = board.Mobile
	fresh.Config = board.Config
	fresh.Extra = board.Extra

	log.Printf("endpoint: updating board %s", board.UUID)
	if err := e.db.UpdateBoard(fresh); err != nil {
		return nil, err
	}
	return fresh, task.Finish()
}

// DestroyBoard deletes a board. An online board is first told to clean
// itself through a dispatched teardown; deletion proceeds regardless for
// offline boards.
func (e *Endpoint) DestroyBoard(ctx context.Context, boardUUID string) (any, error) {
	task, err := Acquire(ctx, e.tasks, boardUUID, false)
	if err != nil {
		return nil, err
	}
	defer task.Release()

	board := task.Board
	log.Printf("endpoint: destroying board %s", boardUUID)

	var result any
	if board.IsOnline() {
		prov := NewProvisioner(nil)
		prov.Clean()
		result, err = e.executeOn(ctx, board, "destroyBoard", []any{prov.Config()})
		if err != nil {
			return nil, err
		}
	}

	if err := e.db.DeleteBoard(boardUUID); err != nil {
		return nil, fmt.Errorf("delete board: %w", err)
	}
	e.registry.ForgetBoard(context.Background(), boardUUID)
	return result, nil
}

// CreatePlugin persists a new plugin owned by its creator.
func (e *Endpoint) CreatePlugin(plugin *store.Plugin) (*store.Plugin, error) {
	if plugin.UUID == "" {
		plugin.UUID = uuid.New().String()
	}
	log.Printf("endpoint: creating plugin %s (%s)", plugin.Name, plugin.UUID)
	if err := e.db.CreatePlugin(plugin); err != nil {
		return nil, err
	}
	return plugin, nil
}

func (e *Endpoint) UpdatePlugin(plugin *store.Plugin) (*store.Plugin, error) {
	log.Printf("endpoint: updating plugin %s", plugin.UUID)
	if err := e.db.UpdatePlugin(plugin); err != nil {
		return nil, err
	}
	return plugin, nil
}

func (e *Endpoint) DestroyPlugin(pluginUUID string) error {
	if _, err := e.db.GetPlugin(pluginUUID); err != nil {
		return err
	}
	log.Printf("endpoint: destroying plugin %s", pluginUUID)
	return e.db.DeletePlugin(pluginUUID)
}

// InjectPlugin deploys a plugin onto a board. On success the injection row
// is upserted: created as "injected" the first time, flipped to "updated"
// on re-injection.
func (e *Endpoint) InjectPlugin(ctx context.Context, pluginUUID, boardUUID string, onboot bool) (any, error) {
	plugin, err := e.db.GetPlugin(pluginUUID)
	if err != nil {
		return nil, err
	}
	log.Printf("endpoint: injecting plugin %s into board %s", pluginUUID, boardUUID)

	payload := map[string]any{
		"uuid":       plugin.UUID,
		"name":       plugin.Name,
		"code":       plugin.Code,
		"callable":   plugin.Callable,
		"parameters": plugin.Parameters,
	}
	result, err := e.ExecuteOnBoard(ctx, boardUUID, "PluginInject", []any{payload, onboot})
	if err != nil {
		return nil, err
	}

	injection, err := e.db.GetInjection(boardUUID, pluginUUID)
	switch {
	case err == nil:
		injection.Status = store.InjectionUpdated
		injection.OnBoot = onboot
		if err := e.db.UpdateInjection(injection); err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		injection = &store.InjectionPlugin{
			BoardUUID:  boardUUID,
			PluginUUID: pluginUUID,
			OnBoot:     onboot,
			Status:     store.InjectionInjected,
		}
		if err := e.db.CreateInjection(injection); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return result, nil
}

// RemovePlugin removes an injected plugin from a board. A missing injection
// row is an error and no dispatch is attempted.
func (e *Endpoint) RemovePlugin(ctx context.Context, pluginUUID, boardUUID string) (any, error) {
	plugin, err := e.db.GetPlugin(pluginUUID)
	if err != nil {
		return nil, err
	}
	if _, err := e.db.GetInjection(boardUUID, pluginUUID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &InjectionNotFoundError{BoardUUID: boardUUID, PluginUUID: pluginUUID}
		}
		return nil, err
	}

	log.Printf("endpoint: removing plugin %s from board %s", pluginUUID, boardUUID)
	result, err := e.ExecuteOnBoard(ctx, boardUUID, "PluginRemove", []any{plugin.UUID})
	if err != nil {
		return nil, err
	}
	if err := e.db.DeleteInjection(boardUUID, pluginUUID); err != nil {
		return nil, err
	}
	return result, nil
}

// ActionPlugin runs a whitelisted action against an injected plugin.
// Caller-supplied parameters are allowed only for actions that accept them,
// and every key must be declared in the plugin's parameter schema.
func (e *Endpoint) ActionPlugin(ctx context.Context, pluginUUID, boardUUID, action string, params map[string]any) (any, error) {
	if !pluginActions[action] {
		return nil, &InvalidPluginActionError{Action: action}
	}
	plugin, err := e.db.GetPlugin(pluginUUID)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		if !pluginCustomParams[action] {
			return nil, &InvalidPluginParamsError{Action: action, Reason: "action takes no custom parameters"}
		}
		for key := range params {
			if _, ok := plugin.Parameters[key]; !ok {
				return nil, &InvalidPluginParamsError{
					Action: action,
					Reason: fmt.Sprintf("parameter %q not declared by plugin %s", key, plugin.UUID),
				}
			}
		}
	}

	log.Printf("endpoint: action %s for plugin %s on board %s", action, pluginUUID, boardUUID)
	if pluginNoParams[action] {
		return e.ExecuteOnBoard(ctx, boardUUID, action, []any{plugin.UUID})
	}
	return e.ExecuteOnBoard(ctx, boardUUID, action, []any{plugin.UUID, params})
}
