// Package phystub provides the reference implementation of the external
// PHY Tx/Rx stub spec.md Section 6 names but leaves unspecified ("the RF
// path-loss and antenna model... treated as an opaque module"). It gives
// bleconn.PHY a concrete, configurable-but-simple channel model so the
// end-to-end scenarios of spec.md Section 8 are runnable standalone.
//
// Grounded on the teacher's internal/netio package: a concrete transport
// (UDPSender/echo_receiver) sitting underneath the abstract
// bfd.PacketSender/receiver interfaces. phystub plays the same role
// underneath bleconn.PHY -- a Stub pairs with exactly one peer Stub,
// modeling the point-to-point nature of one BLE connection's airtime.
package phystub
