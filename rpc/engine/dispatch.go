package engine

import (
	"context"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"time"
)

// --------------------------------------------------------------------------
// Outbound
// --------------------------------------------------------------------------

// Send issues a fire-and-forget command with a fresh command id
func (e *Engine) Send(t common.CommandType, payload []byte) error {
	return e.send(t, payload, nil)
}

// SendWithResponse issues a command with a fresh command id. response runs
// when the command carrying the reply is drained from the inbound queue
// (see TakeCommand / common.Command.CallResponse). It never runs if no reply arrives.
func (e *Engine) SendWithResponse(t common.CommandType, payload []byte, response common.Continuation) error {
	return e.send(t, payload, response)
}

// Reply answers original, reusing its peer id and command id so the sender
// can correlate the reply with its request
func (e *Engine) Reply(original common.Command, t common.CommandType, payload []byte) error {
	e.mu.Lock()
	conn, err := e.connLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}

	conn.Send(common.Header{
		Type:      t,
		PeerID:    original.PeerID(),
		CommandID: original.CommandID(),
	}, payload)
	e.stats.sent(t)
	return nil
}

func (e *Engine) send(t common.CommandType, payload []byte, response common.Continuation) error {
	e.mu.Lock()
	conn, err := e.connLocked()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	header := common.Header{
		Type:      t,
		PeerID:    e.headerPeerID(),
		CommandID: e.nextCommandIDLocked(),
	}
	// record before handing over, the reply may arrive before Send returns
	if response != nil {
		e.pending = append(e.pending, pendingRequest{header: header, response: response, sent: time.Now()})
	}
	e.mu.Unlock()

	conn.Send(header, payload)
	e.stats.sent(t)
	return nil
}

// connLocked returns the connection if commands can be sent. mu must be held.
func (e *Engine) connLocked() (connection, error) {
	if e.conn == nil {
		if e.state == StateTerminated {
			return nil, ErrNotConnected
		}
		return nil, ErrNotStarted
	}
	if e.state == StateTerminated {
		return nil, ErrNotConnected
	}
	select {
	case <-e.conn.Done():
		return nil, ErrNotConnected
	default:
	}
	return e.conn, nil
}

// connection is the part of transport.IConnection used to send
type connection interface {
	Send(header common.Header, payload []byte)
}

// headerPeerID returns the peer id written into outgoing headers. Before the
// identity is negotiated the server uses the id it announces and the client
// uses 0, a negative id would be taken as close signal by the peer.
// mu must be held.
func (e *Engine) headerPeerID() int32 {
	switch {
	case e.ctxID >= 0:
		return e.ctxID
	case e.announced >= 0:
		return e.announced
	default:
		return 0
	}
}

// newCommandID allocates the next command id of this engine
func (e *Engine) newCommandID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextCommandIDLocked()
}

// nextCommandIDLocked returns the current id and advances by 2. mu must be held.
func (e *Engine) nextCommandIDLocked() uint32 {
	id := e.nextID
	e.nextID += 2
	return id
}

// --------------------------------------------------------------------------
// Inbound
// --------------------------------------------------------------------------

// onCommandReceived runs on the I/O service goroutine for every received command
func (e *Engine) onCommandReceived(cmd common.Command) {
	e.stats.received(cmd.Type())

	e.mu.Lock()

	// correlate with a pending request, first match wins
	matched := false
	for i, p := range e.pending {
		if p.header.PeerID == cmd.PeerID() && p.header.CommandID == cmd.CommandID() {
			cmd = cmd.WithResponse(p.response)
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			e.stats.roundTrip.UpdateSince(p.sent)
			matched = true
			break
		}
	}
	if !matched && isReply(cmd.Type()) {
		correlationMisses.Inc()
		e.log.Debugf("unsolicited %s", cmd)
	}

	// identity side effects
	echo := false
	switch cmd.Type() {
	case common.CmdTStartConnection:
		e.ctxID = cmd.PeerID()
		e.identity.Broadcast()
		echo = e.role == RoleClient
		e.log.Infof("peer identity set to %d", e.ctxID)
	case common.CmdTEndConnection:
		e.ctxID = common.UnsetPeerID
		e.identity.Broadcast()
		e.log.Infof("peer ended the session")
	default:
		if e.ctxID < 0 {
			e.ctxID = cmd.PeerID()
			e.identity.Broadcast()
			e.log.Infof("peer identity adopted from %s", cmd)
		}
	}

	e.promoteLocked()

	e.inbound = append(e.inbound, cmd)
	close(e.notify)
	e.notify = make(chan struct{})
	conn := e.conn
	e.mu.Unlock()

	// the client confirms the announced identity by echoing the command
	if echo && conn != nil {
		conn.Send(common.Header{
			Type:      common.CmdTStartConnection,
			PeerID:    cmd.PeerID(),
			CommandID: cmd.CommandID(),
		}, nil)
		e.stats.sent(common.CmdTStartConnection)
	}
}

// isReply reports whether t is only ever sent as answer to a request
func isReply(t common.CommandType) bool {
	switch t {
	case common.CmdTValueString, common.CmdTValueVarList, common.CmdTValueBacktraceList,
		common.CmdTSucceeded, common.CmdTFailed:
		return true
	default:
		return false
	}
}

// HasCommand reports whether the inbound queue is not empty
func (e *Engine) HasCommand() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inbound) > 0
}

// GetCommand returns the oldest received command without removing it.
// Use TakeCommand if other goroutines drain the queue as well.
func (e *Engine) GetCommand() (common.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbound) == 0 {
		return common.Command{}, false
	}
	return e.inbound[0], true
}

// PopCommand removes the oldest received command, returns false if the queue is empty
func (e *Engine) PopCommand() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbound) == 0 {
		return false
	}
	e.inbound[0] = common.Command{}
	e.inbound = e.inbound[1:]
	return true
}

// TakeCommand removes and returns the oldest received command in one step
func (e *Engine) TakeCommand() (common.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbound) == 0 {
		return common.Command{}, false
	}
	cmd := e.inbound[0]
	e.inbound[0] = common.Command{}
	e.inbound = e.inbound[1:]
	return cmd, true
}

// WaitCommand blocks until the inbound queue is not empty. It returns false
// if ctx is done, or if the session ended (connection closed or engine
// stopped) and the queue is empty.
func (e *Engine) WaitCommand(ctx context.Context) bool {
	for {
		e.mu.Lock()
		if len(e.inbound) > 0 {
			e.mu.Unlock()
			return true
		}
		notify := e.notify
		var connDone <-chan struct{}
		if e.conn != nil {
			connDone = e.conn.Done()
		}
		e.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return false
		case <-e.terminated:
			return e.HasCommand()
		case <-connDone:
			// nothing is delivered after the close
			return e.HasCommand()
		}
	}
}

// PendingRequests returns the number of requests still waiting for a reply
func (e *Engine) PendingRequests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
