// Package bleconn implements the BLE connected-piconet link layer:
// connection configuration and mutable context (spec.md Section 3), the
// channel-selection function (Section 4.2), the LL Data/Control PDU codec
// (Section 4.3), the per-connection FSM (Sections 4.3-4.5), the bounded
// application queue (Section 4.6), and the in-band channel-map-update
// procedure (Section 4.9).
//
// This includes the FSM (transition table plus stateful driver), packet
// codec, and channel-map control procedure, modeled directly on
// internal/bfd's split in the teacher repository this module was built
// from: a pure transition-table function (fsm.go) driven by a stateful
// Connection (session.go).
package bleconn
