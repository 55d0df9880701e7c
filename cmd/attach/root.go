package attach

import (
	"bufio"
	"context"
	"errors"
	"github.com/ValentinKolb/rDBG/cmd/util"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/ValentinKolb/rDBG/rpc/server"
	"github.com/spf13/cobra"
	"io"
	"os"
)

var (
	// AttachCmd connects an interactive console to a waiting debuggee
	AttachCmd = &cobra.Command{
		Use:   "attach",
		Short: "Attach to a debuggee and control it interactively",
		Long: `Attach to a debuggee and control it interactively.

Commands are read line by line from stdin (type help for a list).
Notices of the debuggee, like stops and script output, are printed
as they arrive.`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: run,
	}
)

func init() {
	util.SetupSessionFlags(AttachCmd)
}

func run(_ *cobra.Command, _ []string) error {
	shutdown, err := util.Setup()
	if err != nil {
		return err
	}
	defer shutdown()

	conf, err := util.GetEngineConfig()
	if err != nil {
		return err
	}
	endpoint, err := util.GetEndpoint()
	if err != nil {
		return err
	}

	ctx, cancel := util.SignalContext()
	defer cancel()

	e := engine.NewEngine(conf)
	defer e.Stop()

	util.Logger.Infof("connecting to %s (%s)", endpoint, conf.Transport.Network)
	if err := e.Dial(endpoint, util.GetTimeout()); err != nil {
		return err
	}

	c := newConsole(os.Stdout)
	adapter := server.NewFrontendAdapter(c)
	c.attach(e, adapter)
	c.printf("attached to debuggee %d (session %s), type help for a list of commands\n", e.PeerID(), e.SessionID())

	served := make(chan error, 1)
	go func() {
		served <- server.NewCommandServer(e, adapter).Serve(ctx)
		cancel()
	}()

	repl(ctx, c, os.Stdin)

	e.Stop()
	if err := <-served; err != nil && !errors.Is(err, server.ErrSessionEnded) && !errors.Is(err, context.Canceled) {
		return err
	}
	util.Logger.Infof("session stats: %s", e.Stats())
	return nil
}

// repl feeds the console with the lines read from in until the input ends,
// the user quits or ctx is done
func repl(ctx context.Context, c *console, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.execute(line); errors.Is(err, errQuit) {
				return
			} else if err != nil {
				c.printf("%v\n", err)
			}
		}
	}
}
