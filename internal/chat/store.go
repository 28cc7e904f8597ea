package chat

import (
	"sync"

	"github.com/matheus3301/teamchat/internal/bus"
	"github.com/matheus3301/teamchat/internal/logging"
	"github.com/matheus3301/teamchat/internal/metrics"
	"go.uber.org/zap"
)

// StateChange is the bus payload published after every dispatch.
type StateChange struct {
	Action string
	State  State
}

// Store serializes dispatches over one State.
type Store struct {
	mu      sync.Mutex
	state   State
	bus     *bus.Bus
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewStore returns a Store holding the empty state. All arguments may be nil.
func NewStore(b *bus.Bus, m *metrics.Metrics, log *zap.Logger) *Store {
	return &Store{bus: b, metrics: m, log: logging.OrNop(log).Named("chat")}
}

// Dispatch applies a and returns the new snapshot.
func (s *Store) Dispatch(a Action) State {
	name := ActionName(a)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	s.metrics.ObserveDispatch(name)
	s.bus.Emit(bus.KindStateChanged, StateChange{Action: name, State: s.state})
	s.log.Debug("dispatch", zap.String("action", name))
	return s.state
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
