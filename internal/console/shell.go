package console

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/simclock"
)

// shellCommands lists the available commands for the help output,
// mirroring the teacher's shellCommands table (cmd/gobfdctl/commands/
// shell.go).
var shellCommands = []struct {
	name string
	desc string
}{
	{"nodes", "List all registered nodes"},
	{"conn <node> <discriminator>", "Show one connection's FSM state and channel map"},
	{"stats <node> <discriminator>", "Show one connection's traffic statistics"},
	{"channels <node> <discriminator>", "Show the classifier's current good/used channels"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

// Shell is a REPL over a Registry, reading commands from in and writing
// output to out.
type Shell struct {
	reg *Registry
	in  io.Reader
	out io.Writer
}

// NewShell builds a Shell bound to reg, reading from in and writing to
// out (stdin/stdout in cmd/blesim, test buffers in shell_test.go).
func NewShell(reg *Registry, in io.Reader, out io.Writer) *Shell {
	return &Shell{reg: reg, in: in, out: out}
}

// Run reads commands until EOF or an "exit"/"quit" line, following the
// teacher's shellCmd loop shape exactly (bufio.Scanner, prompt printed
// before and after each line, blank lines ignored).
func (s *Shell) Run() error {
	fmt.Fprintln(s.out, "blesim console. Type 'help' for available commands, 'exit' to quit.")
	fmt.Fprintln(s.out)

	scanner := bufio.NewScanner(s.in)
	fmt.Fprint(s.out, "blesim> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "exit" || line == "quit":
			return nil
		case line == "help" || line == "?":
			s.printHelp()
		case line != "":
			s.dispatch(strings.Fields(line))
		}

		fmt.Fprint(s.out, "blesim> ")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read console input: %w", err)
	}
	return nil
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, "Available commands:")
	fmt.Fprintln(s.out)
	for _, c := range shellCommands {
		fmt.Fprintf(s.out, "  %-34s %s\n", c.name, c.desc)
	}
	fmt.Fprintln(s.out)
}

func (s *Shell) dispatch(args []string) {
	switch args[0] {
	case "nodes":
		s.cmdNodes()
	case "conn":
		s.cmdConn(args[1:])
	case "stats":
		s.cmdStats(args[1:])
	case "channels":
		s.cmdChannels(args[1:])
	default:
		fmt.Fprintf(s.out, "unknown command %q, type 'help'\n", args[0])
	}
}

func (s *Shell) cmdNodes() {
	names := s.reg.NodeNames()
	if len(names) == 0 {
		fmt.Fprintln(s.out, "no nodes registered")
		return
	}
	for _, name := range names {
		n := s.reg.Node(name)
		fmt.Fprintf(s.out, "%-20s active_connections=%d\n", name, n.ActiveConnectionCount())
	}
}

// parseConnArgs resolves the (node, discriminator) pair common to the
// conn/stats/channels commands, printing a usage error on failure.
func (s *Shell) parseConnArgs(args []string, usage string) (nodeName string, discr bleconn.ConnDiscriminator, ok bool) {
	if len(args) != 2 {
		fmt.Fprintf(s.out, "usage: %s\n", usage)
		return "", 0, false
	}
	n := s.reg.Node(args[0])
	if n == nil {
		fmt.Fprintf(s.out, "unknown node %q\n", args[0])
		return "", 0, false
	}
	id, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Fprintf(s.out, "invalid discriminator %q: %v\n", args[1], err)
		return "", 0, false
	}
	return args[0], bleconn.ConnDiscriminator(id), true
}

func (s *Shell) cmdConn(args []string) {
	nodeName, discr, ok := s.parseConnArgs(args, "conn <node> <discriminator>")
	if !ok {
		return
	}
	n := s.reg.Node(nodeName)
	conn := n.Connection(discr)
	if conn == nil {
		fmt.Fprintf(s.out, "no active connection %d on node %q\n", discr, nodeName)
		return
	}
	ctx := conn.Context()
	fmt.Fprintf(s.out, "state=%s event_counter=%d used_channels=%v update_in_progress=%v\n",
		ctx.State, ctx.EventCounter, ctx.UsedChannels.Channels(), ctx.UpdateInProgress)
}

func (s *Shell) cmdStats(args []string) {
	nodeName, discr, ok := s.parseConnArgs(args, "stats <node> <discriminator>")
	if !ok {
		return
	}
	n := s.reg.Node(nodeName)
	collector := n.Stats(discr)
	if collector == nil {
		fmt.Fprintf(s.out, "no statistics for connection %d on node %q\n", discr, nodeName)
		return
	}
	snap := collector.Snapshot(simclock.Duration(s.reg.Now()))
	fmt.Fprintf(s.out, "tx=%d rx=%d crc_failed=%d loss_ratio=%.4f throughput_kbps=%.2f avg_latency_s=%.6f avg_rtt_s=%.6f\n",
		snap.TransmittedPackets, snap.ReceivedPackets, snap.CRCFailedPackets,
		snap.PacketLossRatio, snap.ThroughputKbps, snap.AveragePacketLatencySeconds, snap.AverageRTTSeconds)
}

func (s *Shell) cmdChannels(args []string) {
	nodeName, discr, ok := s.parseConnArgs(args, "channels <node> <discriminator>")
	if !ok {
		return
	}
	classifier := s.reg.classifierFor(nodeName, discr)
	if classifier == nil {
		fmt.Fprintf(s.out, "no classifier registered for connection %d on node %q\n", discr, nodeName)
		return
	}
	fmt.Fprintf(s.out, "good_channels=%v\n", classifier.GoodChannels())
}
