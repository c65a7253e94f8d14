package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"iotronic/store"
)

// Registry is the live view of online conductors and wamp agents. SQL is the
// source of truth; redis mirrors it for cheap reads. Selection always works
// on a fresh snapshot, never a cached one.
type Registry struct {
	db       *store.DB
	redis    *RedisStore
	selector Selector
}

func New(db *store.DB, redis *RedisStore, selector Selector) *Registry {
	return &Registry{db: db, redis: redis, selector: selector}
}

// SyncFromSQL rebuilds the redis mirror from SQL: flush everything, then
// re-add the currently online hosts and board statuses. Called on startup
// and whenever the mirror is suspect.
func (r *Registry) SyncFromSQL(ctx context.Context) error {
	if r.redis == nil {
		return nil
	}
	if err := r.redis.Flush(ctx); err != nil {
		return fmt.Errorf("flush mirror: %w", err)
	}

	agents, err := r.db.ListOnlineAgents()
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	for _, a := range agents {
		if err := r.redis.AddAgent(ctx, a.Hostname); err != nil {
			log.Printf("registry: mirror agent %s: %v", a.Hostname, err)
		}
	}

	conductors, err := r.db.ListOnlineConductors()
	if err != nil {
		return fmt.Errorf("list conductors: %w", err)
	}
	for _, c := range conductors {
		if err := r.redis.AddConductor(ctx, c.Hostname); err != nil {
			log.Printf("registry: mirror conductor %s: %v", c.Hostname, err)
		}
	}

	boards, err := r.db.ListBoards()
	if err != nil {
		return fmt.Errorf("list boards: %w", err)
	}
	for _, b := range boards {
		r.redis.SetBoardStatus(ctx, b.UUID, b.Status)
	}

	log.Printf("registry: synced %d agents, %d conductors, %d boards to redis",
		len(agents), len(conductors), len(boards))
	return nil
}

// OnlineAgents snapshots the online agent hostnames, redis first with SQL
// fallback, sorted for deterministic iteration.
func (r *Registry) OnlineAgents(ctx context.Context) ([]string, error) {
	if r.redis != nil {
		hosts, err := r.redis.OnlineAgents(ctx)
		if err == nil && len(hosts) > 0 {
			sort.Strings(hosts)
			return hosts, nil
		}
	}
	agents, err := r.db.ListOnlineAgents()
	if err != nil {
		return nil, err
	}
	hosts := make([]string, len(agents))
	for i, a := range agents {
		hosts[i] = a.Hostname
	}
	return hosts, nil
}

// OnlineConductors snapshots the online conductor hostnames.
func (r *Registry) OnlineConductors(ctx context.Context) ([]string, error) {
	if r.redis != nil {
		hosts, err := r.redis.OnlineConductors(ctx)
		if err == nil && len(hosts) > 0 {
			sort.Strings(hosts)
			return hosts, nil
		}
	}
	conductors, err := r.db.ListOnlineConductors()
	if err != nil {
		return nil, err
	}
	hosts := make([]string, len(conductors))
	for i, c := range conductors {
		hosts[i] = c.Hostname
	}
	return hosts, nil
}

// PickAgent selects one online agent through the configured strategy.
func (r *Registry) PickAgent(ctx context.Context) (string, error) {
	hosts, err := r.OnlineAgents(ctx)
	if err != nil {
		return "", err
	}
	return r.selector.Pick(hosts)
}

// PickConductor selects one online conductor through the configured strategy.
func (r *Registry) PickConductor(ctx context.Context) (string, error) {
	hosts, err := r.OnlineConductors(ctx)
	if err != nil {
		return "", err
	}
	return r.selector.Pick(hosts)
}

// ConductorTopic picks a conductor and returns its RPC topic.
func (r *Registry) ConductorTopic(ctx context.Context, base string) (string, error) {
	host, err := r.PickConductor(ctx)
	if err != nil {
		return "", err
	}
	return TopicFor(base, host), nil
}

// RegistrationAgent returns the online agent responsible for first-boot
// onboarding.
func (r *Registry) RegistrationAgent() (*store.WampAgent, error) {
	return r.db.GetRegistrationAgent()
}

// MarkBoardStatus updates the board-status mirror. Best effort; SQL already
// holds the truth.
func (r *Registry) MarkBoardStatus(ctx context.Context, boardUUID, status string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.SetBoardStatus(ctx, boardUUID, status); err != nil {
		log.Printf("registry: mirror board %s: %v", boardUUID, err)
	}
}

// ForgetBoard drops a destroyed board from the mirror.
func (r *Registry) ForgetBoard(ctx context.Context, boardUUID string) {
	if r.redis == nil {
		return
	}
	r.redis.RemoveBoard(ctx, boardUUID)
}

// Heartbeat keeps this conductor's row, and its co-hosted agent row when one
// exists, fresh until the stop channel closes. Conductors and agents gone
// quiet past the threshold are marked offline on every tick.
func (r *Registry) Heartbeat(hostname string, interval, staleAfter time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.db.TouchConductor(hostname); err != nil {
				log.Printf("registry: heartbeat: %v", err)
			}
			if err := r.db.TouchAgent(hostname); err != nil {
				log.Printf("registry: heartbeat agent: %v", err)
			}
			if n, err := r.db.MarkStaleConductors(staleAfter); err == nil && n > 0 {
				log.Printf("registry: marked %d conductors stale", n)
			}
			if n, err := r.db.MarkStaleAgents(staleAfter); err == nil && n > 0 {
				log.Printf("registry: marked %d agents stale", n)
			}
		}
	}
}
