package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"iotronic/conductor"
	"iotronic/config"
	"iotronic/registry"
	"iotronic/store"
	"iotronic/wamp"
)

// RPCBase prefixes every conductor RPC topic; the full topic is
// RPCBase + "." + hostname.
const RPCBase = "iotronic.conductors"

// Conductor-side procedures invoked by agents on behalf of boards.
const (
	ProcRegistration = "registration"
	ProcConnection   = "connection"
	ProcOnLeave      = "on_leave"
	ProcEcho         = "echo"
)

// Protocol handles the board session lifecycle: first-boot registration,
// reconnection, disconnection, and reconciliation against the broker's live
// session set. Every reply is an envelope; internal failures become ERROR
// envelopes so agents always get an answer.
type Protocol struct {
	db       *store.DB
	registry *registry.Registry
	tasks    *conductor.Deps
	cfg      *config.ConductorConfig
}

func NewProtocol(db *store.DB, reg *registry.Registry, tasks *conductor.Deps, cfg *config.ConductorConfig) *Protocol {
	return &Protocol{db: db, registry: reg, tasks: tasks, cfg: cfg}
}

// Registration onboards a board identified by its factory code. On success
// the board's full configuration is assembled and returned in the envelope;
// the board transitions REGISTERED -> OFFLINE with target ONLINE and waits
// for its first real connection.
func (p *Protocol) Registration(ctx context.Context, code, sessionID string) *wamp.Message {
	board, err := p.db.GetBoardByCode(code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return wamp.NewError(fmt.Sprintf("board with code %s does not exist", code))
		}
		log.Printf("session: registration lookup %s: %v", code, err)
		return wamp.NewError("registration failed")
	}
	if board.Status != store.StatusRegistered {
		return wamp.NewError(fmt.Sprintf("board %s already registered", board.UUID))
	}

	task, err := conductor.Acquire(ctx, p.tasks, board.UUID, false)
	if err != nil {
		log.Printf("session: registration lock %s: %v", board.UUID, err)
		return wamp.NewError("board is busy, retry later")
	}
	defer task.Release()
	board = task.Board

	// Recheck on the locked snapshot: a concurrent registration may have
	// won the race between the lookup above and the lock grant.
	if board.Status != store.StatusRegistered {
		return wamp.NewError(fmt.Sprintf("board %s already registered", board.UUID))
	}

	if err := p.db.InvalidateBoardSessions(board.UUID); err != nil {
		log.Printf("session: invalidate sessions %s: %v", board.UUID, err)
		return wamp.NewError("registration failed")
	}
	if err := p.db.CreateSession(&store.Session{
		BoardID:   board.ID,
		BoardUUID: board.UUID,
		SessionID: sessionID,
		Valid:     true,
	}); err != nil {
		log.Printf("session: create session %s: %v", board.UUID, err)
		return wamp.NewError("registration failed")
	}

	agent, err := p.registry.PickAgent(ctx)
	if err != nil {
		log.Printf("session: pick agent for %s: %v", board.UUID, err)
		return wamp.NewError("no agent available")
	}
	agentRow, err := p.db.GetAgent(agent)
	if err != nil {
		log.Printf("session: agent %s: %v", agent, err)
		return wamp.NewError("no agent available")
	}

	prov := conductor.NewProvisioner(board)
	ragentURL, ragentRealm := p.registrationEndpoint()
	prov.SetRegistrationAgent(ragentURL, ragentRealm)
	prov.SetMainAgent(agentRow.WSURL, p.cfg.Realm)
	if loc, err := p.db.GetBoardLocation(board.ID); err == nil {
		prov.SetLocation(loc)
	}

	board.Agent = agent
	board.Config = prov.Config()
	if err := p.db.UpdateBoard(board); err != nil {
		log.Printf("session: save board %s: %v", board.UUID, err)
		return wamp.NewError("registration failed")
	}

	if err := task.ProcessEvent(conductor.EventRegister); err != nil {
		log.Printf("session: register event %s: %v", board.UUID, err)
		return wamp.NewError("registration failed")
	}
	p.registry.MarkBoardStatus(ctx, board.UUID, board.Status)

	if err := task.Finish(); err != nil {
		log.Printf("session: finish registration %s: %v", board.UUID, err)
	}
	log.Printf("session: board %s registered, routed through %s", board.UUID, agent)
	return wamp.NewSuccess(prov.Config())
}

// registrationEndpoint resolves the onboarding endpoint: the flagged online
// registration agent when one exists, this conductor's own endpoint as the
// fallback when it carries the flag itself.
func (p *Protocol) registrationEndpoint() (url, realm string) {
	if ra, err := p.registry.RegistrationAgent(); err == nil {
		return ra.WSURL, p.cfg.Realm
	}
	return p.cfg.WSURL, p.cfg.Realm
}

// Connection handles a board coming (back) online: the previous session is
// superseded and the board transitions to ONLINE. Boards that never completed
// registration are rejected.
func (p *Protocol) Connection(ctx context.Context, boardUUID, sessionID string) *wamp.Message {
	board, err := p.db.GetBoard(boardUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return wamp.NewError(fmt.Sprintf("board %s does not exist", boardUUID))
		}
		log.Printf("session: connection lookup %s: %v", boardUUID, err)
		return wamp.NewError("connection failed")
	}
	if board.Status == store.StatusRegistered {
		return wamp.NewError(fmt.Sprintf("board %s has not completed registration", boardUUID))
	}

	task, err := conductor.Acquire(ctx, p.tasks, boardUUID, false)
	if err != nil {
		log.Printf("session: connection lock %s: %v", boardUUID, err)
		return wamp.NewError("board is busy, retry later")
	}
	defer task.Release()
	board = task.Board

	if board.Status == store.StatusRegistered {
		return wamp.NewError(fmt.Sprintf("board %s has not completed registration", boardUUID))
	}

	if err := p.db.InvalidateBoardSessions(boardUUID); err != nil {
		log.Printf("session: invalidate sessions %s: %v", boardUUID, err)
		return wamp.NewError("connection failed")
	}
	if err := p.db.CreateSession(&store.Session{
		BoardID:   board.ID,
		BoardUUID: boardUUID,
		SessionID: sessionID,
		Valid:     true,
	}); err != nil {
		log.Printf("session: create session %s: %v", boardUUID, err)
		return wamp.NewError("connection failed")
	}

	// A board reconnecting while still marked ONLINE only swaps sessions;
	// the state machine has nothing to advance.
	if !board.IsOnline() {
		if err := task.ProcessEvent(conductor.EventConnect); err != nil {
			log.Printf("session: connect event %s: %v", boardUUID, err)
			return wamp.NewError("connection failed")
		}
	}
	p.registry.MarkBoardStatus(ctx, boardUUID, board.Status)

	if err := task.Finish(); err != nil {
		log.Printf("session: finish connection %s: %v", boardUUID, err)
	}
	log.Printf("session: board %s connected (session %s)", boardUUID, sessionID)
	return wamp.NewSuccess("connected")
}

// OnLeave handles a transport session dropping. Best effort and idempotent:
// an unknown or already-invalid session is a no-op, and a board whose state
// machine cannot go offline is logged, not failed.
func (p *Protocol) OnLeave(ctx context.Context, sessionID string) {
	sess, err := p.db.GetSessionByID(sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("session: on_leave lookup %s: %v", sessionID, err)
		}
		return
	}
	if !sess.Valid {
		return
	}

	task, err := conductor.Acquire(ctx, p.tasks, sess.BoardUUID, false)
	if err != nil {
		// The session stays valid; a later leave or reconcile retries.
		log.Printf("session: on_leave lock %s: %v", sess.BoardUUID, err)
		return
	}
	defer task.Release()

	// Recheck under the lock: a concurrent connection may have superseded
	// this session while we waited.
	sess, err = p.db.GetSessionByID(sessionID)
	if err != nil || !sess.Valid {
		return
	}

	if err := p.db.InvalidateSession(sessionID); err != nil {
		log.Printf("session: invalidate %s: %v", sessionID, err)
		return
	}

	if err := task.ProcessEvent(conductor.EventOffline); err != nil {
		log.Printf("session: offline event %s: %v", sess.BoardUUID, err)
		return
	}
	p.registry.MarkBoardStatus(ctx, sess.BoardUUID, task.Board.Status)
	if err := task.Finish(); err != nil {
		log.Printf("session: finish on_leave %s: %v", sess.BoardUUID, err)
	}
	log.Printf("session: board %s went offline (session %s)", sess.BoardUUID, sessionID)
}

// Reconcile compares the stored valid sessions against the broker's live
// session set. Stored sessions that are no longer live are invalidated and
// their boards marked offline. Live sessions the store does not know about
// are logged; nothing is restored for them.
func (p *Protocol) Reconcile(ctx context.Context, liveIDs []string) error {
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	stored, err := p.db.ListValidSessions()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	known := make(map[string]bool, len(stored))
	for _, s := range stored {
		known[s.SessionID] = true
		if live[s.SessionID] {
			continue
		}
		log.Printf("session: reconcile: session %s (board %s) is gone, marking offline", s.SessionID, s.BoardUUID)
		p.OnLeave(ctx, s.SessionID)
	}

	for _, id := range liveIDs {
		if !known[id] {
			log.Printf("session: reconcile: live session %s has no stored record", id)
		}
	}

	// A crash between invalidating a session and persisting the status can
	// leave a board ONLINE with no valid session; drive those offline too.
	online, err := p.db.ListBoardsByStatus(store.StatusOnline)
	if err != nil {
		return fmt.Errorf("list online boards: %w", err)
	}
	for _, b := range online {
		if _, err := p.db.GetValidSessionByBoard(b.UUID); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Printf("session: reconcile: sessions for %s: %v", b.UUID, err)
			continue
		}
		log.Printf("session: reconcile: board %s is ONLINE with no session, marking offline", b.UUID)
		task, err := conductor.Acquire(ctx, p.tasks, b.UUID, false)
		if err != nil {
			log.Printf("session: reconcile lock %s: %v", b.UUID, err)
			continue
		}
		if task.Board.IsOnline() {
			if err := task.ProcessEvent(conductor.EventOffline); err != nil {
				log.Printf("session: reconcile offline %s: %v", b.UUID, err)
			} else {
				p.registry.MarkBoardStatus(ctx, b.UUID, task.Board.Status)
			}
		}
		task.Release()
	}
	return nil
}

// Broker is the transport surface Bind needs. Satisfied by *wamp.Client.
type Broker interface {
	Subscribe(topic string, handler func(payload []byte)) error
	Publish(topic string, payload []byte) error
}

// Bind subscribes this conductor's RPC topic and serves the session
// procedures. Each request envelope is answered on its reply_to topic,
// correlated by msg_id.
func (p *Protocol) Bind(broker Broker) error {
	topic := registry.TopicFor(RPCBase, p.cfg.Hostname)
	log.Printf("session: serving rpc on %s", topic)
	return broker.Subscribe(topic, func(payload []byte) {
		req, err := wamp.DecodeRequest(payload)
		if err != nil {
			log.Printf("session: bad request: %v", err)
			return
		}
		res := p.dispatch(context.Background(), req)
		if req.ReplyTo == "" {
			return
		}
		body, err := res.Encode()
		if err != nil {
			log.Printf("session: encode reply: %v", err)
			return
		}
		reply := &wamp.Reply{MsgID: req.MsgID, Body: body}
		data, err := reply.Encode()
		if err != nil {
			log.Printf("session: encode reply: %v", err)
			return
		}
		if err := broker.Publish(req.ReplyTo, data); err != nil {
			log.Printf("session: publish reply to %s: %v, queueing", req.ReplyTo, err)
			if qerr := p.db.EnqueueOutbox(req.ReplyTo, data); qerr != nil {
				log.Printf("session: queue reply to %s: %v", req.ReplyTo, qerr)
			}
		}
	})
}

func (p *Protocol) dispatch(ctx context.Context, req *wamp.Request) *wamp.Message {
	switch req.Procedure {
	case ProcRegistration:
		code, ok1 := argString(req.Args, 0)
		sessionID, ok2 := argString(req.Args, 1)
		if !ok1 || !ok2 {
			return wamp.NewError("registration expects (code, session_id)")
		}
		return p.Registration(ctx, code, sessionID)
	case ProcConnection:
		boardUUID, ok1 := argString(req.Args, 0)
		sessionID, ok2 := argString(req.Args, 1)
		if !ok1 || !ok2 {
			return wamp.NewError("connection expects (board_uuid, session_id)")
		}
		return p.Connection(ctx, boardUUID, sessionID)
	case ProcOnLeave:
		sessionID, ok := argString(req.Args, 0)
		if !ok {
			return wamp.NewError("on_leave expects (session_id)")
		}
		p.OnLeave(ctx, sessionID)
		return wamp.NewSuccess("ok")
	case ProcEcho:
		data, _ := argString(req.Args, 0)
		return wamp.NewSuccess(data)
	default:
		return wamp.NewError(fmt.Sprintf("unknown procedure %q", req.Procedure))
	}
}

func argString(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}
