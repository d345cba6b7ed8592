package bleconn

import "testing"

func TestRequestChannelMapUpdateRejectsDuplicateInFlight(t *testing.T) {
	ctx := NewContext(mustUsed(t, 0, 1, 2))
	newMap := mustUsed(t, 3, 4, 5)

	if !RequestChannelMapUpdate(ctx, newMap) {
		t.Fatal("first request should succeed")
	}
	if RequestChannelMapUpdate(ctx, mustUsed(t, 6, 7)) {
		t.Fatal("a second request must be rejected while one is in flight")
	}
}

func TestRequestChannelMapUpdateNoOpWhenUnchanged(t *testing.T) {
	ctx := NewContext(mustUsed(t, 0, 1, 2))
	if RequestChannelMapUpdate(ctx, ctx.UsedChannels) {
		t.Fatal("requesting the currently enforced map must be a no-op")
	}
}

func TestCommitIfDueOnlyAtInstant(t *testing.T) {
	ctx := NewContext(mustUsed(t, 0, 1))
	newMap := mustUsed(t, 5, 6)
	RequestChannelMapUpdate(ctx, newMap)
	ctx.Pending.Instant = 10

	ctx.EventCounter = 9
	if _, ok := CommitIfDue(ctx); ok {
		t.Fatal("must not commit before the instant")
	}

	ctx.EventCounter = 10
	committed, ok := CommitIfDue(ctx)
	if !ok {
		t.Fatal("expected commit at the instant")
	}
	if !committed.Equal(newMap) {
		t.Fatalf("committed map mismatch: got %v, want %v", committed.Channels(), newMap.Channels())
	}
	if ctx.UpdateInProgress {
		t.Fatal("update_in_progress must be cleared on commit")
	}
}

func TestUpdateTimedOutRequiresAckMissing(t *testing.T) {
	ctx := NewContext(mustUsed(t, 0, 1))
	RequestChannelMapUpdate(ctx, mustUsed(t, 5, 6))
	ctx.Pending.Instant = 10
	ctx.EventCounter = 10

	if !UpdateTimedOut(ctx) {
		t.Fatal("expected timeout when instant reached without acknowledgement")
	}

	ctx.ChannelUpdateAck = true
	if UpdateTimedOut(ctx) {
		t.Fatal("must not report timeout once acknowledged")
	}
}
