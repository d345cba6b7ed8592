package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/classifier"
	"github.com/dantte-lp/blesim/internal/console"
	"github.com/dantte-lp/blesim/internal/events"
	blemetrics "github.com/dantte-lp/blesim/internal/metrics"
	"github.com/dantte-lp/blesim/internal/node"
	"github.com/dantte-lp/blesim/internal/pcaptrace"
	"github.com/dantte-lp/blesim/internal/phystub"
	"github.com/dantte-lp/blesim/internal/scenario"
	"github.com/dantte-lp/blesim/internal/simclock"

	"github.com/prometheus/client_golang/prometheus"
)

// errUnknownPHYMode is returned when a scenario names a PHY mode this
// simulator does not recognize.
var errUnknownPHYMode = errors.New("unknown phy mode")

// simulation bundles everything buildSimulation wires together for one
// scenario run: the discrete-event core, the console registry, the
// Prometheus collector, and the PCAP writers opened per node.
type simulation struct {
	sched    *simclock.Scheduler
	bus      *events.Bus
	reg      *console.Registry
	nodes    map[string]*node.Node
	metrics  *blemetrics.Collector
	registry *prometheus.Registry
	writers  []*pcaptrace.Writer
	traces   map[*node.Node]*pcaptrace.Writer
	end      simclock.Time
	logger   *slog.Logger
	started  time.Time
}

// buildSimulation wires a complete simulation (nodes, connections,
// classifiers, PHY stubs, metrics, PCAP traces) from cfg, following the
// teacher's main.go practice of a single construction function the
// daemon entry point calls before running servers.
func buildSimulation(cfg *scenario.Config, logger *slog.Logger) (*simulation, error) {
	sched := simclock.NewScheduler()
	bus := events.NewBus()

	promReg := prometheus.NewRegistry()
	metricsCollector := blemetrics.NewCollector(promReg)

	sim := &simulation{
		sched:    sched,
		bus:      bus,
		reg:      console.NewRegistry(sched),
		nodes:    make(map[string]*node.Node),
		metrics:  metricsCollector,
		registry: promReg,
		end:      simclock.Time(cfg.DurationSeconds * float64(simclock.Second)),
		logger:   logger,
		started:  time.Now(),
	}

	for _, ns := range cfg.Nodes {
		role, err := scenario.ParseRole(ns.Role)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", ns.Name, err)
		}
		n := node.NewNode(node.Config{
			Name:                 ns.Name,
			ID:                   ns.ID,
			Position:             node.Position{X: ns.X, Y: ns.Y, Z: ns.Z},
			Role:                 role,
			TxPowerDBm:           ns.TxPowerDBm,
			ReceiverSensitivity:  ns.ReceiverSensitivity,
			NoiseFigure:          ns.NoiseFigure,
			ReceiverRangeM:       ns.ReceiverRangeM,
			InterferenceFidelity: ns.InterferenceFidelity,
		}, sched, bus)
		sim.nodes[ns.Name] = n
		sim.reg.AddNode(n)
	}

	lossModels := buildLossModels(cfg)

	var traceDir string
	if cfg.Trace.Enabled {
		traceDir = cfg.Trace.Directory
		if traceDir == "" {
			traceDir = "."
		}
	}
	traceFormat := pcaptrace.FormatPCAPNG
	if strings.EqualFold(cfg.Trace.Extension, ".pcap") {
		traceFormat = pcaptrace.FormatPCAP
	}

	for i, cs := range cfg.Connections {
		if err := sim.wireConnection(i, cs, cfg, lossModels, traceDir, traceFormat); err != nil {
			return nil, err
		}
	}

	return sim, nil
}

// wireConnection builds the central/peripheral endpoints of one
// connection spec and wires its classifier, metrics, and trace capture.
func (sim *simulation) wireConnection(i int, cs scenario.ConnectionSpec, cfg *scenario.Config, lossModels map[string]phystub.LossModel, traceDir string, traceFormat pcaptrace.Format) error {
	central, ok := sim.nodes[cs.CentralNode]
	if !ok {
		return fmt.Errorf("connection %d: unknown central node %q", i, cs.CentralNode)
	}
	peripheral, ok := sim.nodes[cs.PeripheralNode]
	if !ok {
		return fmt.Errorf("connection %d: unknown peripheral node %q", i, cs.PeripheralNode)
	}

	aa, err := scenario.ParseAccessAddress(cs.AccessAddressHex)
	if err != nil {
		return fmt.Errorf("connection %d: %w", i, err)
	}
	phyMode, err := parsePHYMode(cs.PHY)
	if err != nil {
		return fmt.Errorf("connection %d: %w", i, err)
	}
	used, err := bleconn.NewUsedChannelMap(cs.InitialUsedChannels)
	if err != nil {
		return fmt.Errorf("connection %d: %w", i, err)
	}

	discr := bleconn.ConnDiscriminator(i + 1)

	centralCfg := &bleconn.ConnectionConfig{
		Role:                bleconn.RoleCentral,
		AccessAddress:       aa,
		HopIncrement:        cs.HopIncrement,
		PHY:                 phyMode,
		ConnectionInterval:  scenario.MsToDuration(cs.ConnectionIntervalMs),
		ActivePeriod:        scenario.MsToDuration(cs.ActivePeriodMs),
		ConnectionOffset:    scenario.MsToDuration(cs.ConnectionOffsetMs),
		SupervisionTimeout:  scenario.MsToDuration(cs.SupervisionTimeoutMs),
		InstantOffset:       cs.InstantOffset,
		InitialUsedChannels: used,
		PeerName:            peripheral.Config.Name,
		PeerID:              peripheral.Config.ID,
		PeripheralCount:     cs.PeripheralCount,
		MaxPacketDuration:   simclock.Duration(cs.MaxPacketDurationUs) * simclock.Microsecond,
	}
	peripheralCfg := &bleconn.ConnectionConfig{
		Role:                bleconn.RolePeripheral,
		AccessAddress:       aa,
		HopIncrement:        cs.HopIncrement,
		PHY:                 phyMode,
		ConnectionInterval:  centralCfg.ConnectionInterval,
		ActivePeriod:        centralCfg.ActivePeriod,
		ConnectionOffset:    centralCfg.ConnectionOffset,
		SupervisionTimeout:  centralCfg.SupervisionTimeout,
		InstantOffset:       cs.InstantOffset,
		InitialUsedChannels: used,
		PeerName:            central.Config.Name,
		PeerID:              central.Config.ID,
		PeripheralCount:     cs.PeripheralCount,
		MaxPacketDuration:   centralCfg.MaxPacketDuration,
	}

	loss := lossModels[cs.PathLossEnv]
	if loss == nil {
		loss = lossModels[""]
	}
	centralStub := phystub.New(sim.sched, loss)
	peripheralStub := phystub.New(sim.sched, loss)
	phystub.Pair(centralStub, peripheralStub)

	centralPHY, peripheralPHY, err := sim.wrapTracing(central, peripheral, centralStub, peripheralStub, traceDir, traceFormat, cfg.Trace.Enabled)
	if err != nil {
		return fmt.Errorf("connection %d: %w", i, err)
	}

	trafficInterval := scenario.MsToDuration(cs.TrafficIntervalMs)
	centralConn := central.AddConnection(discr, centralCfg, centralPHY, newPeriodicTrafficSource(cs.TrafficPayloadBytes, trafficInterval))
	peripheralConn := peripheral.AddConnection(discr, peripheralCfg, peripheralPHY, newPeriodicTrafficSource(cs.TrafficPayloadBytes, trafficInterval))
	peripheralConn.OnTerminate = func(reason string) {
		sim.logger.Info("peripheral endpoint terminated", slog.String("node", peripheral.Config.Name), slog.String("reason", reason))
	}

	connName := fmt.Sprintf("%s-%s", central.Config.Name, peripheral.Config.Name)
	sim.metrics.RegisterConnection(connName)
	sim.wireConnectionMetrics(connName, uint32(discr), central, centralConn, peripheral)
	sim.wireClassifier(connName, central.Config.Name, discr, centralConn, used, cfg.Classifier)

	return nil
}

// wireConnectionMetrics subscribes the shared event bus to update
// per-connection Prometheus counters, filtered to this connection's
// discriminator exactly as internal/stats.Collector.Attach does.
func (sim *simulation) wireConnectionMetrics(connName string, discr uint32, central *node.Node, centralConn *bleconn.Connection, peripheral *node.Node) {
	sim.bus.OnPacketTransmissionStarted(func(ev events.PacketTransmissionStarted) {
		if ev.ConnDiscr == discr {
			sim.metrics.IncPacketsTransmitted(connName)
		}
	})
	sim.bus.OnPacketReceptionEnded(func(ev events.PacketReceptionEnded) {
		if ev.ConnDiscr != discr {
			return
		}
		if ev.CRCFailed {
			sim.metrics.IncCRCFailures(connName, ev.Channel)
			return
		}
		sim.metrics.IncPacketsReceived(connName, ev.Channel)
	})
	sim.bus.OnChannelMapUpdated(func(ev events.ChannelMapUpdated) {
		if ev.ConnDiscr == discr {
			sim.metrics.IncChannelMapUpdates(connName)
		}
	})

	overflowHook := func(d bleconn.ConnDiscriminator) {
		if uint32(d) == discr {
			sim.metrics.IncQueueOverflows(connName)
		}
	}
	central.OnQueueOverflow = chainQueueOverflow(central.OnQueueOverflow, overflowHook)
	peripheral.OnQueueOverflow = chainQueueOverflow(peripheral.OnQueueOverflow, overflowHook)

	origTerminate := centralConn.OnTerminate
	centralConn.OnTerminate = func(reason string) {
		if origTerminate != nil {
			origTerminate(reason)
		}
		sim.metrics.UnregisterConnection(connName)
		if strings.Contains(reason, "supervision") {
			sim.metrics.IncSupervisionTimeouts(connName)
		}
		sim.logger.Info("connection terminated", slog.String("conn", connName), slog.String("reason", reason))
	}
}

// wireClassifier builds the scenario-selected classifier for one
// connection, subscribes it to the event bus, and wires its channel-map
// candidate back into the central endpoint's RequestChannelMapUpdate
// (spec.md Section 4.7/4.8's "hand it to the link layer" step).
func (sim *simulation) wireClassifier(connName, centralNodeName string, discr bleconn.ConnDiscriminator, centralConn *bleconn.Connection, initial bleconn.UsedChannelMap, cs scenario.ClassifierSpec) {
	kind := strings.ToLower(cs.Kind)
	if kind == "" {
		kind = "baseline"
	}

	pushUpdate := func(candidate []uint8) {
		m, err := bleconn.NewUsedChannelMap(candidate)
		if err != nil {
			sim.logger.Warn("classifier produced invalid channel map", slog.String("conn", connName), slog.String("error", err.Error()))
			return
		}
		centralConn.RequestChannelMapUpdate(m)
		sim.metrics.SetGoodChannels(connName, kind, len(candidate))
	}

	var cls console.Classifier

	switch kind {
	case "eafh":
		c := classifier.NewEAFH(initial)
		c.OnUpdate = pushUpdate
		sim.bus.OnPacketTransmissionStarted(func(ev events.PacketTransmissionStarted) {
			if ev.ConnDiscr == uint32(discr) {
				c.HandleTransmission(ev)
			}
		})
		sim.bus.OnPacketReceptionEnded(func(ev events.PacketReceptionEnded) {
			if ev.ConnDiscr == uint32(discr) {
				c.HandleReception(ev)
			}
		})
		sim.bus.OnConnectionEventEnded(func(ev events.ConnectionEventEnded) {
			if ev.ConnDiscr == uint32(discr) {
				c.HandleEventEnd(ev)
			}
		})
		cls = c
	default:
		opts := []classifier.BaselineOption{}
		if cs.RingSize > 0 {
			opts = append(opts, classifier.WithRingSize(cs.RingSize))
		}
		if cs.MinReceptions > 0 {
			opts = append(opts, classifier.WithMinReceptions(cs.MinReceptions))
		}
		if cs.Threshold > 0 {
			opts = append(opts, classifier.WithThreshold(cs.Threshold))
		}
		if cs.PreferredMinimumGood > 0 {
			opts = append(opts, classifier.WithPreferredMinGood(cs.PreferredMinimumGood))
		}
		c := classifier.NewBaseline(opts...)
		c.OnUpdate = pushUpdate
		sim.bus.OnPacketReceptionEnded(func(ev events.PacketReceptionEnded) {
			if ev.ConnDiscr == uint32(discr) {
				c.HandleReception(ev)
			}
		})
		every := scenario.MsToDuration(cs.ClassifyEveryMs)
		if every <= 0 {
			every = 2 * simclock.Second
		}
		sim.sched.Schedule(simclock.Time(every), every, func(simclock.Time) { c.ClassifyPass() })
		cls = c
	}

	sim.reg.AddConnection(centralNodeName, discr, cls)
}

// wrapTracing returns PHY implementations for both endpoints, each
// writing a PCAP record per transmission to its own node's capture file
// when tracing is enabled, or the bare phystub.Stub otherwise.
func (sim *simulation) wrapTracing(central, peripheral *node.Node, centralStub, peripheralStub *phystub.Stub, dir string, format pcaptrace.Format, enabled bool) (bleconn.PHY, bleconn.PHY, error) {
	if !enabled {
		return centralStub, peripheralStub, nil
	}

	centralWriter, err := sim.openTraceWriter(central, dir, format)
	if err != nil {
		return nil, nil, err
	}
	peripheralWriter, err := sim.openTraceWriter(peripheral, dir, format)
	if err != nil {
		return nil, nil, err
	}

	return &tracingPHY{Stub: centralStub, writer: centralWriter, direction: pcaptrace.DirectionCentralToPeripheral},
		&tracingPHY{Stub: peripheralStub, writer: peripheralWriter, direction: pcaptrace.DirectionPeripheralToCentral},
		nil
}

// openTraceWriter returns n's capture file writer, opening the file on the
// first call for n. It is called once per connection endpoint, so a node
// with multiple connections writes all of them into one interleaved
// capture file, whose name carries the node identity and start time. The
// sidecar records the node name, ID and start time only.
func (sim *simulation) openTraceWriter(n *node.Node, dir string, format pcaptrace.Format) (*pcaptrace.Writer, error) {
	if w, ok := sim.traces[n]; ok {
		return w, nil
	}
	name := filepath.Join(dir, pcaptrace.FileName(n.Config.Name, n.Config.ID, sim.started, format))
	w, err := pcaptrace.Open(name, format, sim.logger)
	if err != nil {
		return nil, fmt.Errorf("open trace for node %s: %w", n.Config.Name, err)
	}
	if err := pcaptrace.WriteMetaSidecar(name, pcaptrace.Meta{
		NodeName:  n.Config.Name,
		NodeID:    n.Config.ID,
		StartedAt: sim.started,
	}); err != nil {
		sim.logger.Warn("failed to write trace metadata sidecar", slog.String("node", n.Config.Name), slog.String("error", err.Error()))
	}
	sim.writers = append(sim.writers, w)
	if sim.traces == nil {
		sim.traces = make(map[*node.Node]*pcaptrace.Writer)
	}
	sim.traces[n] = w
	return w, nil
}

// run steps the scheduler to completion and closes all resources.
func (sim *simulation) run() {
	for _, n := range sim.nodes {
		n.Start(0)
	}
	sim.sched.RunUntil(sim.end)
	for _, w := range sim.writers {
		if err := w.Close(); err != nil {
			sim.logger.Warn("failed to close trace file", slog.String("error", err.Error()))
		}
	}
}

func buildLossModels(cfg *scenario.Config) map[string]phystub.LossModel {
	models := make(map[string]phystub.LossModel, len(cfg.PathLoss)+1)
	models[""] = phystub.NewTableModel(cfg.Seed, nil, 0.01, -60, 20)
	for _, env := range cfg.PathLoss {
		defaultPER := paramOr(env.Params, "default_per", 0.01)
		baseRSSI := paramOr(env.Params, "base_rssi_dbm", -70)
		baseSINR := paramOr(env.Params, "base_sinr_db", 15)
		opts := []phystub.TableModelOption{}
		if jitter, ok := env.Params["rssi_jitter"]; ok {
			opts = append(opts, phystub.WithRSSIJitter(jitter))
		}
		if jitter, ok := env.Params["sinr_jitter"]; ok {
			opts = append(opts, phystub.WithSINRJitter(jitter))
		}
		models[env.Name] = phystub.NewTableModel(cfg.Seed, nil, defaultPER, baseRSSI, baseSINR, opts...)
	}
	return models
}

// chainQueueOverflow combines a node's existing OnQueueOverflow hook (if
// any, from an earlier connection wired on the same node) with a new
// one, so a central with several peripherals still counts an overflow
// on every connection rather than just the last one wired.
func chainQueueOverflow(existing, next func(bleconn.ConnDiscriminator)) func(bleconn.ConnDiscriminator) {
	if existing == nil {
		return next
	}
	return func(d bleconn.ConnDiscriminator) {
		existing(d)
		next(d)
	}
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func parsePHYMode(s string) (bleconn.PHYMode, error) {
	switch strings.ToUpper(s) {
	case "", "LE1M":
		return bleconn.LE1M, nil
	case "LE2M":
		return bleconn.LE2M, nil
	case "LE500K":
		return bleconn.LE500K, nil
	case "LE125K":
		return bleconn.LE125K, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownPHYMode, s)
	}
}
