package phystub

import "math/rand"

// LossModel samples the outcome of one reception attempt on a given data
// channel: whether the packet's CRC fails in flight, and the RSSI/SINR
// readings the receiver would report alongside it (spec.md Section 6,
// "RxEnd{..., rssi_dBm, sinr_dB, ...}").
type LossModel interface {
	Sample(channel uint8) (crcFail bool, rssiDBm, sinrDB float64)
}

// PERTable maps a data channel index to its packet error rate in [0,1].
// Channels absent from the table use the owning TableModel's default
// rate -- the simplest stand-in for the opaque WLAN-interferer/path-loss
// models named in spec.md Section 1.
type PERTable map[uint8]float64

// TableModel is a LossModel driven by a per-channel PER table plus fixed
// RSSI/SINR baselines with optional jitter, deterministic under a given
// seed (spec.md Section 8: "identical seeds reproduce identical traces").
type TableModel struct {
	rng *rand.Rand

	per        PERTable
	defaultPER float64

	baseRSSIdBm float64
	baseSINRdB  float64
	rssiJitter  float64
	sinrJitter  float64
}

// TableModelOption configures optional TableModel parameters.
type TableModelOption func(*TableModel)

// WithRSSIJitter adds uniform +/-jitter dB to the reported RSSI.
func WithRSSIJitter(jitter float64) TableModelOption {
	return func(m *TableModel) { m.rssiJitter = jitter }
}

// WithSINRJitter adds uniform +/-jitter dB to the reported SINR.
func WithSINRJitter(jitter float64) TableModelOption {
	return func(m *TableModel) { m.sinrJitter = jitter }
}

// NewTableModel builds a TableModel seeded for reproducibility. per may be
// nil, in which case every channel uses defaultPER.
func NewTableModel(seed int64, per PERTable, defaultPER, baseRSSIdBm, baseSINRdB float64, opts ...TableModelOption) *TableModel {
	m := &TableModel{
		rng:         rand.New(rand.NewSource(seed)),
		per:         per,
		defaultPER:  defaultPER,
		baseRSSIdBm: baseRSSIdBm,
		baseSINRdB:  baseSINRdB,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sample implements LossModel.
func (m *TableModel) Sample(channel uint8) (crcFail bool, rssiDBm, sinrDB float64) {
	rate := m.defaultPER
	if r, ok := m.per[channel]; ok {
		rate = r
	}

	rssi := m.baseRSSIdBm
	if m.rssiJitter > 0 {
		rssi += (m.rng.Float64()*2 - 1) * m.rssiJitter
	}
	sinr := m.baseSINRdB
	if m.sinrJitter > 0 {
		sinr += (m.rng.Float64()*2 - 1) * m.sinrJitter
	}

	return m.rng.Float64() < rate, rssi, sinr
}

// SetChannelPER overrides the per-channel error rate for channel,
// allowing a scenario to model a moving WLAN interferer or path-loss
// change without rebuilding the model.
func (m *TableModel) SetChannelPER(channel uint8, rate float64) {
	if m.per == nil {
		m.per = make(PERTable)
	}
	m.per[channel] = rate
}
