// Package server drives a debug session on top of an engine. It drains the
// engine's inbound queue, runs the continuations of replies and hands every
// other command to an adapter, which implements one side of the session.
//
// Key Components:
//
//   - CommandServer: created by NewCommandServer, Serve handles commands one
//     at a time in arrival order until the session ended (ErrSessionEnded) or
//     the context is done. ServeWhile serves a nested loop that ends when a
//     condition flips, used while a script is held at a break.
//
//   - ICommandAdapter / ISession: the adapter receives each command together
//     with the session to answer it. Every request must be answered, with
//     FAILED if the adapter does not know it.
//
//   - FrontendAdapter: the debugger side. Maps notices of the debuggee to an
//     IFrontend, keeps the announced sources (lib/source) and the breakpoint
//     list (lib/breakpoint) and acknowledges UPDATE_SOURCE.
//
//   - LuaAdapter: a demo debuggee running scripts in gopher-lua. Scripts stop
//     at rdbg.pause() or at rdbg.trace() when a breakpoint or step matches.
//     While stopped it answers EVAL, the variable list requests and
//     REQUEST_STACKLIST from the live Lua stack.
//
// Usage Example (debuggee):
//
//	e := engine.NewEngine(common.DefaultEngineConfig())
//	if err := e.StartAsServer(51123, 1, 30*time.Second); err != nil {
//	  log.Fatal(err)
//	}
//	defer e.Stop()
//
//	lua := server.NewLuaAdapter(e.PeerID())
//	key, _ := lua.Load("main", "main.lua", code)
//	s := server.NewCommandServer(e, lua)
//
//	_ = lua.Announce(e)
//	if err := lua.Run(ctx, s, key); err != nil {
//	  log.Print(err)
//	}
//	_ = s.Serve(ctx) // keep answering until the debugger leaves
//
// Thread Safety:
//
//	Serve, ServeWhile and the adapters run on the calling goroutine. The
//	LuaAdapter must not be used from any other goroutine while it is served.
//	The FrontendAdapter's Sources and Breakpoints may be read concurrently.
package server
