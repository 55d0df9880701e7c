package debuggee

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rDBG/cmd/util"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/ValentinKolb/rDBG/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

var (
	// DebuggeeCmd runs a Lua script as the debuggee of a session
	DebuggeeCmd = &cobra.Command{
		Use:   "debuggee",
		Short: "Run a Lua script and wait for a debugger",
		Long: `Run a Lua script and wait for a debugger.

The command listens on the session endpoint and blocks until a debugger
attached. The script then runs and stops at rdbg.pause() and at
rdbg.trace() calls that match a breakpoint or a step. After the script
finished the session stays open until the debugger leaves.`,
		PreRunE: processConfig,
		RunE:    run,
	}

	script string
	peerID int32
	linger bool
)

func init() {
	util.SetupSessionFlags(DebuggeeCmd)

	key := "script"
	DebuggeeCmd.Flags().String(key, "", util.WrapString("Path of the Lua script to run (required)"))
	key = "peer-id"
	DebuggeeCmd.Flags().Int32(key, 1, util.WrapString("Identity announced to the debugger"))
	key = "linger"
	DebuggeeCmd.Flags().Bool(key, true, util.WrapString("Keep answering the debugger after the script finished"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	script = viper.GetString("script")
	if script == "" {
		return errors.New("no script given (use --script)")
	}
	peerID = viper.GetInt32("peer-id")
	if peerID < 0 {
		return fmt.Errorf("invalid peer id %d: must not be negative", peerID)
	}
	linger = viper.GetBool("linger")
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	shutdown, err := util.Setup()
	if err != nil {
		return err
	}
	defer shutdown()

	code, err := os.ReadFile(script)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	conf, err := util.GetEngineConfig()
	if err != nil {
		return err
	}
	endpoint, err := util.GetEndpoint()
	if err != nil {
		return err
	}

	// compile before anyone attaches, a syntax error should not cost a session
	lua := server.NewLuaAdapter(peerID)
	defer lua.Close()
	key, err := lua.Load("", script, string(code))
	if err != nil {
		return err
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	e := engine.NewEngine(conf)
	defer func() {
		e.Stop()
		util.Logger.Infof("session stats: %s", e.Stats())
	}()

	util.Logger.Infof("waiting for a debugger on %s (%s)", endpoint, conf.Transport.Network)
	if err := e.Listen(endpoint, peerID, util.GetTimeout()); err != nil {
		return err
	}
	util.Logger.Infof("debugger attached, session %s", e.SessionID())

	s := server.NewCommandServer(e, lua)
	if err := lua.Announce(e); err != nil {
		return err
	}

	err = lua.Run(ctx, s, key)
	switch {
	case errors.Is(err, server.ErrSessionEnded):
		util.Logger.Infof("debugger left before the script finished")
		return nil
	case ctx.Err() != nil:
		return nil
	case err != nil:
		util.Logger.Errorf("script failed: %v", err)
	default:
		util.Logger.Infof("script finished")
	}

	if !linger {
		return err
	}
	if serveErr := s.Serve(ctx); serveErr != nil && !errors.Is(serveErr, server.ErrSessionEnded) && ctx.Err() == nil {
		return serveErr
	}
	return err
}
