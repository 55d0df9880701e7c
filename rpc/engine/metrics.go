package engine

import (
	"fmt"
	"github.com/ValentinKolb/rDBG/rpc/common"
	vm "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"time"
)

// correlationMisses counts replies that matched no pending request
var correlationMisses = vm.NewCounter("rdbg_correlation_misses_total")

func commandsSent(t common.CommandType) *vm.Counter {
	return vm.GetOrCreateCounter(fmt.Sprintf(`rdbg_commands_sent_total{type=%q}`, t.String()))
}

func commandsReceived(t common.CommandType) *vm.Counter {
	return vm.GetOrCreateCounter(fmt.Sprintf(`rdbg_commands_received_total{type=%q}`, t.String()))
}

// engineStats holds the per engine metrics. The process wide Prometheus
// counters above are updated alongside.
type engineStats struct {
	registry  gometrics.Registry
	roundTrip gometrics.Timer
	inbound   gometrics.Meter
	outbound  gometrics.Meter
}

func newEngineStats() *engineStats {
	s := &engineStats{
		registry:  gometrics.NewRegistry(),
		roundTrip: gometrics.NewTimer(),
		inbound:   gometrics.NewMeter(),
		outbound:  gometrics.NewMeter(),
	}
	_ = s.registry.Register("round_trip", s.roundTrip)
	_ = s.registry.Register("inbound", s.inbound)
	_ = s.registry.Register("outbound", s.outbound)
	return s
}

func (s *engineStats) sent(t common.CommandType) {
	commandsSent(t).Inc()
	s.outbound.Mark(1)
}

func (s *engineStats) received(t common.CommandType) {
	commandsReceived(t).Inc()
	s.inbound.Mark(1)
}

// close stops the meters' background ticking
func (s *engineStats) close() {
	s.registry.UnregisterAll()
}

// Stats is a snapshot of the traffic of one engine
type Stats struct {
	CommandsSent     int64
	CommandsReceived int64
	// SentRate1 and ReceivedRate1 are one-minute moving averages in commands per second
	SentRate1     float64
	ReceivedRate1 float64
	// RoundTrips is the number of replies matched with their request
	RoundTrips      int64
	RoundTripMean   time.Duration
	RoundTripP99    time.Duration
	PendingRequests int
}

// Stats returns a snapshot of the engine's traffic metrics
func (e *Engine) Stats() Stats {
	rt := e.stats.roundTrip.Snapshot()
	in := e.stats.inbound.Snapshot()
	out := e.stats.outbound.Snapshot()
	return Stats{
		CommandsSent:     out.Count(),
		CommandsReceived: in.Count(),
		SentRate1:        out.Rate1(),
		ReceivedRate1:    in.Rate1(),
		RoundTrips:       rt.Count(),
		RoundTripMean:    time.Duration(rt.Mean()),
		RoundTripP99:     time.Duration(rt.Percentile(0.99)),
		PendingRequests:  e.PendingRequests(),
	}
}

// String returns a one line summary for log messages
func (s Stats) String() string {
	return fmt.Sprintf("sent=%d received=%d round_trips=%d mean=%s p99=%s pending=%d",
		s.CommandsSent, s.CommandsReceived, s.RoundTrips, s.RoundTripMean, s.RoundTripP99, s.PendingRequests)
}
