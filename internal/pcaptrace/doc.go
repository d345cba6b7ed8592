// Package pcaptrace implements the PCAP trace writer spec.md Section 1
// names as an out-of-scope "opaque module" and Section 6 specifies the
// wire format for: one capture file per node, each packet record
// carrying a synthetic PHY header (channel, signal/noise power, AA
// offenses, access address, flags, optional coding indicator) ahead of
// the Link Layer PDU bytes.
//
// Failure handling follows spec.md Section 7.4: an I/O failure on a
// write disables that node's trace stream and is logged; it never stops
// the simulation.
package pcaptrace
