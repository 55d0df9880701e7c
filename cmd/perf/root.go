package perf

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"github.com/ValentinKolb/rDBG/cmd/util"
	"github.com/ValentinKolb/rDBG/lib/breakpoint"
	"github.com/ValentinKolb/rDBG/lib/source"
	"github.com/ValentinKolb/rDBG/rpc/common"
	"github.com/ValentinKolb/rDBG/rpc/engine"
	"github.com/ValentinKolb/rDBG/rpc/serializer"
	"github.com/ValentinKolb/rDBG/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	// PerfCmd benchmarks request round trips over a local session
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for the rDBG transport",
		Long: `Performance testing tool for the rDBG transport.

Starts a debuggee running a paused Lua script and a debugger in the
same process, connected over the configured network, and measures the
round trip of the inspection requests.`,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfNumThreads   = 10
	perfVarCount     = 100
	perfReplyTimeout = 5 * time.Second
	perfSkip         = make([]string, 0)
)

// perfScript creates perfVarCount globals and stops until it is resumed
const perfScript = `local n = 21
local t = {name = "perf", depth = 3}
for i = 1, %d do
  _G["var" .. i] = i
end
rdbg.pause()
`

func init() {
	util.SetupSessionFlags(PerfCmd)

	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. eval,stack)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "vars"
	PerfCmd.Flags().Int(key, 100, util.WrapString("How many global variables the script creates (size of the globals reply)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfVarCount = viper.GetInt("vars")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	if timeout := util.GetTimeout(); timeout > 0 {
		perfReplyTimeout = timeout
	}

	if perfNumThreads < 1 {
		return fmt.Errorf("invalid thread count %d", perfNumThreads)
	}
	if perfVarCount < 0 {
		return fmt.Errorf("invalid var count %d", perfVarCount)
	}
	return nil
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

	fmt.Println("Performance testing tool for the rDBG transport")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Network: %s\n", conf.Transport.Network)
	fmt.Printf("Endpoint: %s\n", endpoint)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Vars: %d\n", perfVarCount)
	fmt.Println()

	ctx, cancel := util.SignalContext()
	defer cancel()

	s, err := startSession(ctx, conf, endpoint)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Println("staring tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	frame := serializer.StackFrame{Level: 0}

	benchmarks := []struct {
		name  string
		issue func(done func(error)) error
	}{
		{"eval", func(done func(error)) error {
			return s.debugger.Eval("n * 2", frame, func(_ string, err error) { done(err) })
		}},
		{"locals", func(done func(error)) error {
			return s.debugger.RequestLocalVarList(frame, func(_ []serializer.Var, err error) { done(err) })
		}},
		{"globals", func(done func(error)) error {
			return s.debugger.RequestGlobalVarList(func(_ []serializer.Var, err error) { done(err) })
		}},
		{"eval-list", func(done func(error)) error {
			return s.debugger.RequestEvalVarList([]string{"n", "t", "t.depth + n"}, frame, func(_ []serializer.Var, err error) { done(err) })
		}},
		{"stack", func(done func(error)) error {
			return s.debugger.RequestStackList(func(_ []serializer.Backtrace, err error) { done(err) })
		}},
	}

	for _, bench := range benchmarks {
		if ctx.Err() != nil {
			break
		}
		name, issue := bench.name, bench.issue
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if err := roundTrip(issue); err != nil {
						util.Logger.Warningf("(%s) - request failed: %v", name, err)
					}
				}
			})
		})
		results[name] = result
		printResult(name, result)
	}

	fmt.Println()
	fmt.Printf("debugger: %s\n", s.debugger.Stats())
	fmt.Printf("debuggee: %s\n", s.debuggee.Stats())

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, conf, endpoint); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// session is a debuggee and a debugger connected in the same process
type session struct {
	debuggee *engine.Engine
	debugger *engine.Engine
	scriptCh chan error
	serveCh  chan error
}

// startSession connects both ends and returns once the script is paused
func startSession(ctx context.Context, conf common.EngineConfig, endpoint string) (*session, error) {
	s := &session{
		debuggee: engine.NewEngine(conf),
		debugger: engine.NewEngine(conf),
		scriptCh: make(chan error, 1),
		serveCh:  make(chan error, 1),
	}
	timeout := util.GetTimeout()

	listened := make(chan error, 1)
	go func() {
		// the Lua state is confined to this goroutine
		lua := server.NewLuaAdapter(1)
		defer lua.Close()
		key, err := lua.Load("perf", "perf.lua", fmt.Sprintf(perfScript, perfVarCount))
		if err != nil {
			listened <- err
			return
		}
		if err := s.debuggee.Listen(endpoint, 1, timeout); err != nil {
			listened <- err
			return
		}
		listened <- nil

		srv := server.NewCommandServer(s.debuggee, lua)
		if err := lua.Announce(s.debuggee); err != nil {
			s.scriptCh <- err
			return
		}
		s.scriptCh <- lua.Run(ctx, srv, key)
	}()

	if err := s.debugger.Dial(endpoint, timeout); err != nil {
		s.debuggee.Stop()
		return nil, err
	}
	if err := <-listened; err != nil {
		s.debugger.Stop()
		return nil, err
	}

	paused := &pauseFrontend{stopped: make(chan struct{})}
	go func() {
		s.serveCh <- server.NewCommandServer(s.debugger, server.NewFrontendAdapter(paused)).Serve(ctx)
	}()

	select {
	case <-paused.stopped:
		return s, nil
	case err := <-s.scriptCh:
		s.scriptCh <- err
		s.close()
		return nil, fmt.Errorf("script ended before it paused: %v", err)
	case <-time.After(perfReplyTimeout):
		s.close()
		return nil, errors.New("script did not pause")
	}
}

// close resumes the script and ends the session
func (s *session) close() {
	if err := s.debugger.Resume(); err != nil {
		util.Logger.Debugf("resume failed: %v", err)
	}
	select {
	case err := <-s.scriptCh:
		if err != nil && !errors.Is(err, server.ErrSessionEnded) && !errors.Is(err, context.Canceled) {
			util.Logger.Warningf("script failed: %v", err)
		}
	case <-time.After(perfReplyTimeout):
		util.Logger.Warningf("script did not finish")
	}
	s.debugger.Stop()
	s.debuggee.Stop()
	<-s.serveCh
}

// pauseFrontend only tracks the first stop of the script
type pauseFrontend struct {
	stopped chan struct{}
	once    bool
}

func (f *pauseFrontend) OnChangedState(isBreak bool) {
	if isBreak && !f.once {
		f.once = true
		close(f.stopped)
	}
}

func (f *pauseFrontend) OnUpdateSource(string, int32, uint32)            {}
func (f *pauseFrontend) OnForceUpdateSource()                            {}
func (f *pauseFrontend) OnAddedSource(source.Source)                     {}
func (f *pauseFrontend) OnChangedBreakpointList([]breakpoint.Breakpoint) {}
func (f *pauseFrontend) OnOutputLog(serializer.OutputLog)                {}
func (f *pauseFrontend) OnSetUpdateCount(uint32)                         {}
func (f *pauseFrontend) OnSessionEnded()                                 {}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// roundTrip issues one request and waits for its callback
func roundTrip(issue func(done func(error)) error) error {
	result := make(chan error, 1)
	if err := issue(func(err error) { result <- err }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-time.After(perfReplyTimeout):
		return errors.New("no reply")
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, conf common.EngineConfig, endpoint string) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Network", "Endpoint", "TCPNoDelay", "WriteTimeout",
		"Threads", "Vars",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			string(conf.Transport.Network),
			endpoint,
			strconv.FormatBool(conf.Transport.TCPConf.TCPNoDelay),
			conf.Transport.WriteTimeout.String(),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfVarCount),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
