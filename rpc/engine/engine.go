package engine

import (
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/transport"
	"github.com/ValentinKolb/rDBG/rpc/transport/base"
	"github.com/ValentinKolb/rDBG/rpc/transport/tcp"
	"github.com/ValentinKolb/rDBG/rpc/transport/unix"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"strconv"
	"sync"
	"time"
)

var Logger = logger.GetLogger("engine")

// defaultDrainTimeout bounds how long Stop waits for queued writes if no write timeout is configured
const defaultDrainTimeout = 2 * time.Second

// --------------------------------------------------------------------------
// Role and State
// --------------------------------------------------------------------------

// Role is the side of the session an engine plays
type Role int

const (
	RoleNone   Role = iota
	RoleServer      // debuggee side, listens and announces the peer identity
	RoleClient      // debugger side, dials and confirms the peer identity
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "none"
	}
}

// commandIDSeed returns the first command id of a role. Server ids are odd,
// client ids are even, so ids generated on both sides never collide.
func (r Role) commandIDSeed() uint32 {
	if r == RoleClient {
		return 2
	}
	return 1
}

// State is the lifecycle state of an engine
type State int

const (
	StateIdle State = iota
	StateEstablishing
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEstablishing:
		return "establishing"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// pendingRequest is a sent command waiting for its reply
type pendingRequest struct {
	header   common.Header
	response common.Continuation
	sent     time.Time
}

// Engine owns the connection of one debug session. It allocates command ids,
// correlates replies with their requests, negotiates the peer identity and
// queues received commands for the application.
type Engine struct {
	config    common.EngineConfig
	sessionID string
	stats     *engineStats
	log       logger.ILogger // Logger tagged with the session

	mu       sync.Mutex
	identity *sync.Cond // signaled when ctxID changes or the engine terminates

	// guarded by mu
	state      State
	role       Role
	announced  int32 // peer id the server role announces
	ctxID      int32
	nextID     uint32
	pending    []pendingRequest
	inbound    []common.Command
	notify     chan struct{} // closed and replaced when a command is queued
	svc        *base.Service
	conn       transport.IConnection
	running    bool
	stop       chan struct{}
	done       chan struct{}
	terminated chan struct{}
}

// NewEngine creates an idle engine
func NewEngine(config common.EngineConfig) *Engine {
	config.Transport = config.Transport.WithDefaults()
	e := &Engine{
		config:     config,
		sessionID:  uuid.NewString(),
		ctxID:      common.UnsetPeerID,
		announced:  common.UnsetPeerID,
		notify:     make(chan struct{}),
		terminated: make(chan struct{}),
	}
	e.identity = sync.NewCond(&e.mu)
	e.stats = newEngineStats()
	e.log = common.WithSession(Logger, e.sessionID[:8])
	return e
}

// --------------------------------------------------------------------------
// Start / Stop
// --------------------------------------------------------------------------

// StartAsServer listens on port of the configured ListenHost, accepts one
// debugger and announces peerID as the session identity
func (e *Engine) StartAsServer(port int, peerID int32, timeout time.Duration) error {
	return e.Listen(net.JoinHostPort(e.config.ListenHost, strconv.Itoa(port)), peerID, timeout)
}

// StartAsClient dials host:port and waits for the identity announced by the debuggee
func (e *Engine) StartAsClient(host, port string, timeout time.Duration) error {
	return e.Dial(net.JoinHostPort(host, port), timeout)
}

// Listen starts the server role on endpoint ("host:port", or a socket path for
// the unix network). It blocks until the peer confirmed peerID or timeout
// elapsed. A negative timeout returns immediately.
func (e *Engine) Listen(endpoint string, peerID int32, timeout time.Duration) error {
	if peerID < 0 {
		return fmt.Errorf("invalid peer id %d: must not be negative", peerID)
	}
	return e.start(RoleServer, peerID, timeout, func(svc *base.Service) (transport.IConnection, error) {
		var l *base.Listener
		var err error
		if e.config.Transport.Network == common.NetworkUnix {
			l, err = unix.NewListener(svc, endpoint, e.config.Transport, e.onCommandReceived)
		} else {
			l, err = tcp.NewListener(svc, endpoint, e.config.Transport, e.onCommandReceived)
		}
		if err != nil {
			return nil, err
		}
		return l, nil
	})
}

// Dial starts the client role against endpoint ("host:port", or a socket path
// for the unix network). It blocks until the identity was received or timeout
// elapsed. A negative timeout returns immediately.
func (e *Engine) Dial(endpoint string, timeout time.Duration) error {
	return e.start(RoleClient, common.UnsetPeerID, timeout, func(svc *base.Service) (transport.IConnection, error) {
		var d *base.Dialer
		var err error
		if e.config.Transport.Network == common.NetworkUnix {
			d, err = unix.NewDialer(svc, endpoint, e.config.Transport, e.onCommandReceived)
		} else {
			d, err = tcp.NewDialer(svc, endpoint, e.config.Transport, e.onCommandReceived)
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

// start establishes the connection, runs the I/O service and performs the handshake
func (e *Engine) start(role Role, peerID int32, timeout time.Duration, build func(*base.Service) (transport.IConnection, error)) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = StateEstablishing
	e.role = role
	e.announced = peerID
	e.nextID = role.commandIDSeed()
	e.mu.Unlock()

	deadline := time.Now().Add(timeout)
	e.log.Infof("starting as %s (timeout %s)", role, timeout)
	e.log.Debugf("configuration:%s", e.config.String())

	svc := base.NewService()
	conn, err := build(svc)
	if err != nil {
		svc.Close()
		e.Stop()
		return err
	}

	e.mu.Lock()
	e.svc = svc
	e.conn = conn
	e.mu.Unlock()

	if err := conn.Start(timeout); err != nil {
		e.log.Warningf("%s: %v", role, err)
		e.Stop()
		return err
	}

	e.runService()

	if role == RoleServer {
		conn.Send(common.Header{
			Type:      common.CmdTStartConnection,
			PeerID:    peerID,
			CommandID: e.newCommandID(),
		}, nil)
		e.stats.sent(common.CmdTStartConnection)
	}

	if timeout >= 0 && !e.waitIdentity(deadline) {
		e.log.Warningf("%s: %v", role, ErrIdentityTimeout)
		e.Stop()
		return ErrIdentityTimeout
	}

	// without a wait the identity arrives later, onCommandReceived promotes the state then
	e.mu.Lock()
	e.promoteLocked()
	e.mu.Unlock()

	e.log.Infof("session started as %s, peer id %d", role, e.PeerID())
	return nil
}

// promoteLocked moves an establishing engine to StateConnected once the identity is known
func (e *Engine) promoteLocked() {
	if e.state == StateEstablishing && e.ctxID >= 0 {
		e.state = StateConnected
	}
}

// runService starts the goroutine that drives all further I/O
func (e *Engine) runService() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	svc, conn, stop, done := e.svc, e.conn, e.stop, e.done
	drain := e.config.Transport.WriteTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}

	go func() {
		defer close(done)
		svc.Run(stop, func() bool { return !conn.HasPendingWrites() }, drain)
	}()
}

// waitIdentity blocks until the peer identity is known, the engine
// terminated or deadline passed. Returns whether the identity is known.
func (e *Engine) waitIdentity(deadline time.Time) bool {
	timer := time.AfterFunc(time.Until(deadline), func() {
		e.mu.Lock()
		e.identity.Broadcast()
		e.mu.Unlock()
	})
	defer timer.Stop()

	e.mu.Lock()
	defer e.mu.Unlock()
	for e.ctxID < 0 && e.state != StateTerminated && time.Now().Before(deadline) {
		e.identity.Wait()
	}
	return e.ctxID >= 0
}

// Stop ends the session: it sends END_CONNECTION if still connected, waits
// until queued writes are done, releases the connection and drops all pending
// requests. Safe to call multiple times.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateTerminated {
		e.mu.Unlock()
		return
	}
	e.state = StateTerminated
	conn, svc := e.conn, e.svc
	running, stop, done := e.running, e.stop, e.done
	e.running = false
	header := common.Header{
		Type:      common.CmdTEndConnection,
		PeerID:    e.headerPeerID(),
		CommandID: e.nextCommandIDLocked(),
	}
	e.mu.Unlock()

	if running && conn.IsConnected() {
		conn.Send(header, nil)
		e.stats.sent(common.CmdTEndConnection)
	}

	if running {
		close(stop)
		<-done
	}
	if conn != nil {
		conn.Release()
	}
	if svc != nil {
		svc.Close()
	}

	e.mu.Lock()
	if n := len(e.pending); n > 0 {
		e.log.Debugf("dropping %d pending requests", n)
	}
	e.pending = nil
	e.identity.Broadcast()
	close(e.terminated)
	e.mu.Unlock()

	e.stats.close()
	e.log.Infof("session stopped")
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// SessionID returns a random id identifying this engine in log messages
func (e *Engine) SessionID() string {
	return e.sessionID
}

// PeerID returns the negotiated session identity, or common.UnsetPeerID
func (e *Engine) PeerID() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctxID
}

// Role returns the role the engine was started with
func (e *Engine) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

// State returns the lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsConnected reports whether the connection is up. A session that lost its
// connection never reconnects, a new Engine is needed.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// Done returns a channel that is closed once Stop completed
func (e *Engine) Done() <-chan struct{} {
	return e.terminated
}

// Config returns the configuration the engine was created with
func (e *Engine) Config() common.EngineConfig {
	return e.config
}
