package mining

import (
	"fmt"
	"sync"
)

// Upstream wraps one upstream pool connection with the per-group
// JobDispatcher bindings the share-submission translation algorithm needs.
// The map is guarded independently of Registry's locks since dispatcher
// lookups happen on the hot share-submission path and must not contend with
// channel/job bookkeeping elsewhere on the connection.
type Upstream struct {
	Peer Peer

	mu          sync.RWMutex
	dispatchers map[uint32]JobDispatcher // group id -> dispatcher
}

// NewUpstream wraps peer with an empty dispatcher table.
func NewUpstream(peer Peer) *Upstream {
	return &Upstream{
		Peer:        peer,
		dispatchers: make(map[uint32]JobDispatcher),
	}
}

// BindDispatcher installs the JobDispatcher responsible for groupID.
func (u *Upstream) BindDispatcher(groupID uint32, d JobDispatcher) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dispatchers[groupID] = d
}

// UnbindDispatcher removes groupID's dispatcher, typically once its last
// channel closes.
func (u *Upstream) UnbindDispatcher(groupID uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.dispatchers, groupID)
}

// Dispatcher returns the JobDispatcher bound to groupID.
func (u *Upstream) Dispatcher(groupID uint32) (JobDispatcher, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	d, ok := u.dispatchers[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: group %d", ErrNoJobDispatcher, groupID)
	}
	return d, nil
}
