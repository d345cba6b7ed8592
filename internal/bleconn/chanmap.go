package bleconn

// RequestChannelMapUpdate marks ctx so the next outgoing packet on the
// central carries a Channel Map Indication for newMap (spec.md Section
// 4.9). It is a no-op, returning false, if an update is already in
// flight ("Only one update may be in flight per connection") or if newMap
// is unchanged from the currently enforced map (spec.md Section 8,
// round-trip property: "two identical update_channel_list(L) calls...
// result in at most one... transmission").
func RequestChannelMapUpdate(ctx *Context, newMap UsedChannelMap) bool {
	if ctx.UpdateInProgress {
		return false
	}
	if newMap.Equal(ctx.UsedChannels) {
		return false
	}
	ctx.ChannelsClassified = true
	ctx.ClassificationSent = true
	ctx.UpdateInProgress = true
	ctx.ChannelUpdateAck = false
	ctx.Pending = &pendingChannelMap{Map: newMap}
	return true
}

// CommitIfDue applies a pending channel map when the connection event
// counter reaches its instant (spec.md Section 4.9: "On every event with
// event_counter == instant, both sides: commit used_channels := map,
// reset update_in_progress, emit ChannelMapUpdated"). It returns the
// committed map and true when a commit happened this call.
func CommitIfDue(ctx *Context) (UsedChannelMap, bool) {
	if ctx.Pending == nil || ctx.EventCounter != ctx.Pending.Instant {
		return 0, false
	}
	committed := ctx.Pending.Map
	ctx.UsedChannels = committed
	ctx.UpdateInProgress = false
	ctx.ChannelsClassified = false
	ctx.ClassificationSent = false
	ctx.ChannelUpdateAck = false
	ctx.Pending = nil
	return committed, true
}

// UpdateTimedOut reports whether the central reached its pending update's
// instant without receiving an acknowledgement (spec.md Section 4.9: "If
// the central reaches instant with channel_update_ack still false... the
// connection terminates"). Callers must check this before CommitIfDue at
// the instant event, since a timed-out update must terminate the
// connection rather than commit.
func UpdateTimedOut(ctx *Context) bool {
	return ctx.Pending != nil && ctx.EventCounter == ctx.Pending.Instant && !ctx.ChannelUpdateAck
}
