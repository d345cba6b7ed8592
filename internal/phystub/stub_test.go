package phystub_test

import (
	"testing"

	"github.com/dantte-lp/blesim/internal/bleconn"
	"github.com/dantte-lp/blesim/internal/phystub"
	"github.com/dantte-lp/blesim/internal/simclock"
)

func TestStubDeliversMatchingTransmission(t *testing.T) {
	sched := simclock.NewScheduler()
	model := phystub.NewTableModel(1, nil, 0, -60, 20)

	a := phystub.New(sched, model)
	b := phystub.New(sched, model)
	phystub.Pair(a, b)

	var got bleconn.RxResult
	var called bool
	b.Listen(0, 5, 0xBEEF, bleconn.LE1M, 1000*simclock.Microsecond, func(r bleconn.RxResult) {
		called = true
		got = r
	})

	a.Transmit(0, bleconn.TxRecord{
		AccessAddress:  0xBEEF,
		Channel:        5,
		PHY:            bleconn.LE1M,
		PDU:            []byte{1, 2, 3},
		PacketDuration: 300 * simclock.Microsecond,
	})

	sched.RunUntil(2000)

	if !called {
		t.Fatal("onEnd never called")
	}
	if got.Failed {
		t.Error("Failed = true, want successful delivery")
	}
	if len(got.PDU) != 3 {
		t.Errorf("PDU length = %d, want 3", len(got.PDU))
	}
}

func TestStubTimesOutWithNoTransmission(t *testing.T) {
	sched := simclock.NewScheduler()
	model := phystub.NewTableModel(1, nil, 0, -60, 20)

	a := phystub.New(sched, model)
	b := phystub.New(sched, model)
	phystub.Pair(a, b)

	var got bleconn.RxResult
	b.Listen(0, 5, 0xBEEF, bleconn.LE1M, 500*simclock.Microsecond, func(r bleconn.RxResult) {
		got = r
	})

	sched.RunUntil(1000)

	if !got.Failed {
		t.Error("Failed = false, want implicit timeout")
	}
}

func TestStubMismatchedChannelIsLost(t *testing.T) {
	sched := simclock.NewScheduler()
	model := phystub.NewTableModel(1, nil, 0, -60, 20)

	a := phystub.New(sched, model)
	b := phystub.New(sched, model)
	phystub.Pair(a, b)

	var got bleconn.RxResult
	b.Listen(0, 5, 0xBEEF, bleconn.LE1M, 500*simclock.Microsecond, func(r bleconn.RxResult) {
		got = r
	})

	a.Transmit(0, bleconn.TxRecord{
		AccessAddress:  0xBEEF,
		Channel:        9, // mismatched channel
		PHY:            bleconn.LE1M,
		PDU:            []byte{1, 2, 3},
		PacketDuration: 100 * simclock.Microsecond,
	})

	sched.RunUntil(1000)

	if !got.Failed {
		t.Error("Failed = false, want mismatched-channel transmission to be lost")
	}
}

func TestTableModelAlwaysFailsAtFullPER(t *testing.T) {
	model := phystub.NewTableModel(1, phystub.PERTable{3: 1.0}, 0, -60, 20)

	for i := 0; i < 20; i++ {
		if fail, _, _ := model.Sample(3); !fail {
			t.Fatal("channel with PER=1.0 sampled a success")
		}
	}
	for i := 0; i < 20; i++ {
		if fail, _, _ := model.Sample(4); fail {
			t.Fatal("channel with default PER=0 sampled a failure")
		}
	}
}
