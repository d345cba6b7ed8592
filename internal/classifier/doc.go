// Package classifier implements the two AFH channel-quality estimators of
// spec.md Section 4.7 (baseline, PER-based) and Section 4.8 (enhanced,
// eAFH): both consume PacketReceptionEnded events from internal/events and
// periodically produce a new used-channel list for the link layer's
// channel-map-update procedure (internal/bleconn).
package classifier
