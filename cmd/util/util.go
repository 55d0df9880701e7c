package util

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	vm "github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags and configuration
// --------------------------------------------------------------------------

// SetupSessionFlags adds the flags every command opening a debug session needs
func SetupSessionFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Duration(key, 30*time.Second, WrapString("How long to wait for the peer to connect and confirm the session (negative = do not wait)"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "", WrapString("Full endpoint of the session (host:port, or a socket path for the unix network). Overrides host and port"))

	key = "host"
	cmd.PersistentFlags().String(key, common.DefaultHost, WrapString("Host of the session. The debuggee binds to it, the debugger dials it"))

	key = "port"
	cmd.PersistentFlags().String(key, common.DefaultPort, WrapString("Port of the session"))

	key = "poll-interval-ms"
	cmd.PersistentFlags().Int(key, int(common.DefaultPollInterval/time.Millisecond), WrapString("Sleep between two polls while waiting for the connection (in ms)"))

	key = "retry-delay-ms"
	cmd.PersistentFlags().Int(key, int(common.DefaultRetryDelay/time.Millisecond), WrapString("Pause before a failed accept or connect is retried (in ms)"))

	key = "write-timeout"
	cmd.PersistentFlags().Duration(key, 5*time.Second, WrapString("Deadline of a single command write (0 = none)"))

	key = "max-payload"
	cmd.PersistentFlags().Uint32(key, common.DefaultMaxPayloadSize, WrapString("Largest payload accepted from the peer (in bytes)"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 = OS default)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 = OS default)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time (in seconds, negative = OS default, only for tcp)"))
}

// InitConfig loads .env files and binds environment variables (RDBG_<FLAG>)
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rdbg")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetEngineConfig reads the engine configuration from viper
func GetEngineConfig() (common.EngineConfig, error) {
	conf := common.EngineConfig{
		ListenHost: viper.GetString("host"),
		LogLevel:   viper.GetString("log-level"),
		Transport: common.TransportConfig{
			Network:        common.Network(viper.GetString("network")),
			PollInterval:   time.Duration(viper.GetInt("poll-interval-ms")) * time.Millisecond,
			RetryDelay:     time.Duration(viper.GetInt("retry-delay-ms")) * time.Millisecond,
			WriteTimeout:   viper.GetDuration("write-timeout"),
			MaxPayloadSize: viper.GetUint32("max-payload"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPNoDelay:      viper.GetBool("tcp-nodelay"),
				TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("tcp-linger"),
			},
		},
	}

	switch conf.Transport.Network {
	case common.NetworkTCP, common.NetworkUnix:
	default:
		return conf, fmt.Errorf("invalid network %q (expected tcp or unix)", conf.Transport.Network)
	}

	conf.Transport = conf.Transport.WithDefaults()
	return conf, nil
}

// GetEndpoint returns the endpoint flag, or host:port if it is not set
func GetEndpoint() (string, error) {
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		return endpoint, nil
	}
	port := viper.GetString("port")
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", fmt.Errorf("invalid port %q: %w", port, err)
	}
	return net.JoinHostPort(viper.GetString("host"), port), nil
}

// GetTimeout returns the establishment timeout
func GetTimeout() time.Duration {
	return viper.GetDuration("timeout")
}

// --------------------------------------------------------------------------
// Runtime helpers
// --------------------------------------------------------------------------

// SignalContext returns a context that is canceled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ServeMetrics exposes all Prometheus counters on endpoint under /metrics.
// It returns nil if endpoint is empty.
func ServeMetrics(endpoint string) *http.Server {
	if endpoint == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		vm.WritePrometheus(w, true)
	})
	srv := &http.Server{Addr: endpoint, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		Logger.Infof("serving metrics on http://%s/metrics", endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	return srv
}

// Setup initializes the loggers and the metrics endpoint of a command.
// The returned function shuts the endpoint down.
func Setup() (func(), error) {
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return nil, err
	}
	srv := ServeMetrics(viper.GetString("metrics-endpoint"))
	return func() {
		if srv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
