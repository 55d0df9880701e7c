package server

import (
	"context"
	"errors"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
)

var Logger = logger.GetLogger("server")

// ErrSessionEnded is returned by Serve once the engine lost its connection
// and every queued command has been handled
var ErrSessionEnded = errors.New("debug session ended")

var _ IEngine = (*engine.Engine)(nil)

// NewCommandServer creates a server draining the inbound queue of e into adapter
//
// Usage:
//
//	e := engine.NewEngine(common.DefaultEngineConfig())
//	if err := e.StartAsServer(51123, 1, 10*time.Second); err != nil {
//		panic(err)
//	}
//
//	s := server.NewCommandServer(e, server.NewFrontendAdapter(frontend))
//	if err := s.Serve(ctx); !errors.Is(err, server.ErrSessionEnded) {
//		panic(err)
//	}
func NewCommandServer(e IEngine, adapter ICommandAdapter) *CommandServer {
	return &CommandServer{
		engine:  e,
		adapter: adapter,
	}
}

// CommandServer runs the continuations of replies and hands every other
// command to its adapter, one command at a time and in arrival order
type CommandServer struct {
	engine  IEngine
	adapter ICommandAdapter
	ended   sync.Once
}

// Serve handles commands until the session ended (ErrSessionEnded) or ctx is done
func (s *CommandServer) Serve(ctx context.Context) error {
	return s.ServeWhile(ctx, nil)
}

// ServeWhile handles commands as long as keep returns true (nil = forever).
// keep is checked before every command, so an adapter can serve a nested
// loop while it holds the interpreter stopped and return once it resumes.
func (s *CommandServer) ServeWhile(ctx context.Context, keep func() bool) error {
	for keep == nil || keep() {
		if !s.engine.WaitCommand(ctx) {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.endSession()
			return ErrSessionEnded
		}

		cmd, ok := s.engine.TakeCommand()
		if !ok {
			continue
		}
		s.dispatch(cmd)
	}
	return nil
}

func (s *CommandServer) dispatch(cmd common.Command) {
	if cmd.CallResponse() {
		Logger.Debugf("reply %s handled by its continuation", cmd)
		return
	}
	Logger.Debugf("handling %s", cmd)
	s.adapter.Handle(cmd, s.engine)
}

func (s *CommandServer) endSession() {
	s.ended.Do(func() {
		Logger.Infof("session ended")
		if observer, ok := s.adapter.(ISessionObserver); ok {
			observer.SessionEnded()
		}
	})
}
