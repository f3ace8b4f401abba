package archive

import (
	"fmt"
	"sync"

	"github.com/ngas-archive/ngas/pkg/types"
)

// ServerContext holds the process-wide operational state the archive path
// gates on. State transitions are method calls with well-defined pre and
// post states; nothing here is persisted to the catalog.
type ServerContext struct {
	mu       sync.Mutex
	state    types.ServerState
	subState types.ServerSubState
	active   int
}

// NewServerContext creates a context in OFFLINE state.
func NewServerContext() *ServerContext {
	return &ServerContext{
		state:    types.StateOffline,
		subState: types.SubStateIdle,
	}
}

// SetOnline moves the server to ONLINE/IDLE.
func (c *ServerContext) SetOnline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = types.StateOnline
	c.subState = types.SubStateIdle
}

// SetOffline moves the server to OFFLINE.
func (c *ServerContext) SetOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = types.StateOffline
}

// State returns the current state.
func (c *ServerContext) State() types.ServerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubState returns the current substate.
func (c *ServerContext) SubState() types.ServerSubState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subState
}

// BeginRequest admits an archive request: the server must be ONLINE with
// substate IDLE or BUSY. On success the substate is BUSY until the
// matching EndRequest.
func (c *ServerContext) BeginRequest() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StateOnline {
		return types.NewArchiveError(types.ErrInvalidRequest,
			fmt.Sprintf("server state is %s, archive requires %s", c.state, types.StateOnline), nil)
	}
	c.active++
	c.subState = types.SubStateBusy
	return nil
}

// EndRequest retires an archive request; the substate drops back to IDLE
// when no request remains in flight.
func (c *ServerContext) EndRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
	if c.active == 0 {
		c.subState = types.SubStateIdle
	}
}
