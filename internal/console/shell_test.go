package console_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/console"
	"github.com/dantte-lp/blesim/internal/events"
	"github.com/dantte-lp/blesim/internal/node"
	"github.com/dantte-lp/blesim/internal/simclock"
)

type fakeClassifier struct{ channels []uint8 }

func (f fakeClassifier) GoodChannels() []uint8 { return f.channels }

func newTestNode(t *testing.T) (*simclock.Scheduler, *node.Node, *bleconn.Connection) {
	t.Helper()
	sched := simclock.NewScheduler()
	bus := events.NewBus()
	n := node.NewNode(node.Config{Name: "central-1", ID: 1, Role: bleconn.RoleCentral}, sched, bus)

	used, err := bleconn.NewUsedChannelMap([]uint8{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("NewUsedChannelMap: %v", err)
	}
	cfg := &bleconn.ConnectionConfig{
		Role:                bleconn.RoleCentral,
		AccessAddress:       0x8E89BED6,
		HopIncrement:        7,
		ConnectionInterval:  7500 * simclock.Microsecond,
		SupervisionTimeout:  6 * simclock.Second,
		InstantOffset:       6,
		InitialUsedChannels: used,
		MaxPacketDuration:   2120 * simclock.Microsecond,
	}

	conn := n.AddConnection(1, cfg, noopPHY{}, nil)
	return sched, n, conn
}

type noopPHY struct{}

func (noopPHY) Transmit(now simclock.Time, rec bleconn.TxRecord) {}
func (noopPHY) Listen(now simclock.Time, channel uint8, aa uint32, phy bleconn.PHYMode, maxDur simclock.Duration, onEnd func(bleconn.RxResult)) {
}

func TestShellNodesAndConn(t *testing.T) {
	sched, n, _ := newTestNode(t)
	reg := console.NewRegistry(sched)
	reg.AddNode(n)
	reg.AddConnection("central-1", 1, fakeClassifier{channels: []uint8{2, 4, 6}})

	var out bytes.Buffer
	in := strings.NewReader("nodes\nconn central-1 1\nchannels central-1 1\nexit\n")
	sh := console.NewShell(reg, in, &out)

	if err := sh.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"central-1", "state=", "good_channels=[2 4 6]"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q; got:\n%s", want, got)
		}
	}
}

func TestShellUnknownNode(t *testing.T) {
	sched := simclock.NewScheduler()
	reg := console.NewRegistry(sched)

	var out bytes.Buffer
	in := strings.NewReader("conn ghost 1\nexit\n")
	sh := console.NewShell(reg, in, &out)

	if err := sh.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !strings.Contains(out.String(), `unknown node "ghost"`) {
		t.Errorf("expected unknown-node message, got:\n%s", out.String())
	}
}

func TestShellHelpAndUnknownCommand(t *testing.T) {
	sched := simclock.NewScheduler()
	reg := console.NewRegistry(sched)

	var out bytes.Buffer
	in := strings.NewReader("help\nbogus\nexit\n")
	sh := console.NewShell(reg, in, &out)

	if err := sh.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Available commands") {
		t.Error("help output missing command table")
	}
	if !strings.Contains(got, `unknown command "bogus"`) {
		t.Error("expected unknown-command message")
	}
}
