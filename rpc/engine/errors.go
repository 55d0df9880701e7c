package engine

import (
	"errors"
	"github.com/ValentinKolb/rDBG/rpc/transport"
)

var (
	// ErrEstablishTimeout is returned by the Start methods if no connection was established in time
	ErrEstablishTimeout = transport.ErrEstablishTimeout
	// ErrIdentityTimeout is returned if the connection was established but the peer
	// identity was not negotiated in time
	ErrIdentityTimeout = errors.New("peer identity not negotiated within timeout")
	// ErrNotStarted is returned by Send if the engine was never started
	ErrNotStarted = errors.New("engine not started")
	// ErrAlreadyStarted is returned if a Start method is called twice
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrNotConnected is returned by Send after the session ended
	ErrNotConnected = errors.New("engine not connected")
	// ErrRequestFailed is passed to a typed callback if the peer answered with FAILED
	ErrRequestFailed = errors.New("request failed on peer")
)
