package reconciler

import (
	"context"
	"sync"

	"github.com/clearco/calendar-connector/internal/domain"
)

// syncGuard enforces the one-in-flight-sync-per-connection rule.  The cancel
// function registered on acquire is what CancelSync invokes, so a caller can
// stop a run without holding a reference to it.
type syncGuard struct {
	lock     sync.Mutex
	inFlight map[domain.ConnectionID]context.CancelFunc
}

func newSyncGuard() *syncGuard {
	return &syncGuard{
		inFlight: make(map[domain.ConnectionID]context.CancelFunc),
	}
}

func (g *syncGuard) acquire(connectionID domain.ConnectionID, cancel context.CancelFunc) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if _, running := g.inFlight[connectionID]; running {
		return domain.SyncAlreadyRunningError
	}

	g.inFlight[connectionID] = cancel
	return nil
}

func (g *syncGuard) release(connectionID domain.ConnectionID) {
	g.lock.Lock()
	defer g.lock.Unlock()

	delete(g.inFlight, connectionID)
}

// cancel stops the in-flight run for the connection.  Returns false when no
// run is in flight.
func (g *syncGuard) cancel(connectionID domain.ConnectionID) bool {
	g.lock.Lock()
	defer g.lock.Unlock()

	cancelRun, running := g.inFlight[connectionID]
	if !running {
		return false
	}

	cancelRun()
	return true
}
