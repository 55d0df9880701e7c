package cmd

import (
	"fmt"
	"github.com/ValentinKolb/rDBG/cmd/attach"
	"github.com/ValentinKolb/rDBG/cmd/debuggee"
	"github.com/ValentinKolb/rDBG/cmd/perf"
	"github.com/ValentinKolb/rDBG/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "rdbg",
		Short: "remote debugger transport",
		Long: fmt.Sprintf(`rDBG (v%s)

A transport for remote debugging written in Go. A debuggee and a
debugger exchange framed commands over one TCP or unix socket session.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rDBG",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rDBG v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(debuggee.DebuggeeCmd)
	RootCmd.AddCommand(attach.AttachCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "network"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("network of the session (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level (debug, info, warn, error)"))
	key = "metrics-endpoint"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Address to expose Prometheus metrics on (e.g. localhost:9100, empty = disabled)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
