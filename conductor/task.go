package conductor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"iotronic/store"
)

// Deps carries the shared handles a task needs. Constructed once at process
// start and passed down; no package-level state.
type Deps struct {
	DB                *store.DB
	Host              string
	Workers           *WorkerPool
	LockRetryAttempts int
	LockRetryInterval time.Duration
}

// Task is a scoped handle on one board. Exclusive tasks hold the persisted
// per-board lock for their whole lifetime, including any background unit
// scheduled through SpawnAfter; the lock is released exactly once, by
// whichever path finishes last.
//
// Usage:
//
//	task, err := conductor.Acquire(ctx, deps, boardUUID, false)
//	if err != nil { ... }
//	defer task.Release()
//	if err := task.ProcessEvent(conductor.EventConnect); err != nil { ... }
//	return task.Finish()
type Task struct {
	deps   *Deps
	Board  *store.Board
	Shared bool

	fsm        *Machine
	prevState  string
	prevTarget string

	spawnFn func() error
	errHook func(err error, prevState, prevTarget string)

	// detached is set once Finish hands the release to a background unit;
	// the caller's deferred Release then becomes a no-op.
	detached    bool
	releaseOnce sync.Once
}

// Acquire locks a board and returns a task handle. Exclusive acquisition
// retries a bounded number of times with a fixed backoff when another holder
// has the board, then surfaces BoardLockedError. Shared acquisition never
// blocks and never claims the lock.
func Acquire(ctx context.Context, deps *Deps, boardUUID string, shared bool) (*Task, error) {
	if !shared {
		if err := reserve(ctx, deps, boardUUID); err != nil {
			return nil, err
		}
	}

	board, err := deps.DB.GetBoard(boardUUID)
	if err != nil {
		if !shared {
			deps.DB.ReleaseBoard(boardUUID, deps.Host)
		}
		return nil, err
	}

	return &Task{
		deps:   deps,
		Board:  board,
		Shared: shared,
		fsm:    NewMachine(board.Status),
	}, nil
}

func reserve(ctx context.Context, deps *Deps, boardUUID string) error {
	attempts := deps.LockRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var reserved *store.ReservedError
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(deps.LockRetryInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := deps.DB.ReserveBoard(boardUUID, deps.Host)
		if err == nil {
			return nil
		}
		if !errors.As(err, &reserved) {
			return err
		}
		log.Printf("task: board %s held by %s, attempt %d/%d", boardUUID, reserved.Holder, i+1, attempts)
	}
	return &BoardLockedError{BoardUUID: boardUUID, Holder: reserved.Holder}
}

// requireExclusive guards operations that mutate the board.
func (t *Task) requireExclusive(op string) error {
	if t.Shared {
		return &ExclusiveLockRequiredError{Op: op}
	}
	return nil
}

// ProcessEvent advances the board's provisioning state machine and persists
// the resulting status and target status as one atomic update. An invalid
// event mutates nothing.
func (t *Task) ProcessEvent(event string) error {
	if err := t.requireExclusive("process_event"); err != nil {
		return err
	}

	t.prevState = t.Board.Status
	t.prevTarget = t.Board.TargetStatus

	if err := t.fsm.ProcessEvent(t.Board.UUID, event); err != nil {
		return err
	}

	t.Board.Status = t.fsm.Current()
	t.Board.TargetStatus = t.fsm.Target()
	if err := t.deps.DB.UpdateBoardStatus(t.Board.UUID, t.Board.Status, t.Board.TargetStatus); err != nil {
		// Roll the in-memory copy back so the handle stays consistent
		// with the store.
		t.Board.Status = t.prevState
		t.Board.TargetStatus = t.prevTarget
		t.fsm = NewMachine(t.prevState)
		return fmt.Errorf("persist transition: %w", err)
	}
	return nil
}

// SpawnAfter defers fn to run after Finish. The lock is held until fn
// completes, success or failure.
func (t *Task) SpawnAfter(fn func() error) {
	t.spawnFn = fn
}

// SetSpawnErrorHook installs a hook that receives the error and the board's
// pre-transition state and target state, for compensating logic when the
// background unit cannot be started or fails. Hook panics are logged, never
// escalated.
func (t *Task) SetSpawnErrorHook(hook func(err error, prevState, prevTarget string)) {
	t.errHook = hook
}

// Finish completes the task's scope. Without deferred work the lock is
// released immediately. With deferred work the background unit is handed to
// the pool and the lock is released when it completes; if the pool refuses
// the unit, the error hook runs, the lock is released, and ErrNoFreeWorker
// is returned.
func (t *Task) Finish() error {
	if t.spawnFn == nil {
		t.Release()
		return nil
	}

	fn := t.spawnFn
	t.detached = true
	err := t.deps.Workers.Spawn(func() {
		defer t.doRelease()
		if err := fn(); err != nil {
			log.Printf("task: background work for board %s: %v", t.Board.UUID, err)
			t.runErrHook(err)
		}
	})
	if err != nil {
		t.detached = false
		t.runErrHook(err)
		t.Release()
		return err
	}
	return nil
}

func (t *Task) runErrHook(err error) {
	if t.errHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("task: error hook panicked for board %s: %v", t.Board.UUID, r)
		}
	}()
	t.errHook(err, t.prevState, t.prevTarget)
}

// Release unlocks the board. Idempotent: safe on every exit path, including
// after Finish has handed the release to a background unit (the lock is then
// released by that unit, exactly once).
func (t *Task) Release() {
	if t.detached {
		return
	}
	t.doRelease()
}

func (t *Task) doRelease() {
	t.releaseOnce.Do(func() {
		if t.Shared {
			return
		}
		if err := t.deps.DB.ReleaseBoard(t.Board.UUID, t.deps.Host); err != nil {
			log.Printf("task: release board %s: %v", t.Board.UUID, err)
		}
	})
}
