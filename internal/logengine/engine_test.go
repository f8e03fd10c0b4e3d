package logengine

import (
	"context"
	"testing"
	"time"

	"go.fieldops.dev/squadctl/internal/events"
	"go.fieldops.dev/squadctl/internal/logsource"
)

type fakeSource struct {
	lines chan logsource.Line
}

func newFakeSource() *fakeSource {
	return &fakeSource{lines: make(chan logsource.Line, 16)}
}

func (f *fakeSource) Watch(ctx context.Context) (<-chan logsource.Line, error) {
	return f.lines, nil
}

func (f *fakeSource) Close() error {
	close(f.lines)
	return nil
}

func TestEngineDispatchesMatchingLineToEvent(t *testing.T) {
	store := NewStore()
	pub := &capturingPublisher{}
	engine := NewEngine(store, pub)
	src := newFakeSource()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx, src) }()

	src.lines <- logsource.Line{Text: `[2024.01.15-12.30.45:123][ 42]LogSquad: ADMIN COMMAND: Message broadcasted <hello> from Someone`}

	deadline := time.After(2 * time.Second)
	for {
		if len(pub.published) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for event")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if pub.published[0].Kind != events.KindAdminBroadcast {
		t.Errorf("expected ADMIN_BROADCAST, got %s", pub.published[0].Kind)
	}

	cancel()
	<-done
}

func TestEngineDropsUnmatchedLinesSilently(t *testing.T) {
	store := NewStore()
	pub := &capturingPublisher{}
	engine := NewEngine(store, pub)
	src := newFakeSource()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, src)

	src.lines <- logsource.Line{Text: "this line matches no rule at all"}
	time.Sleep(50 * time.Millisecond)

	if len(pub.published) != 0 {
		t.Fatalf("expected no events published, got %d", len(pub.published))
	}
	_, dropped := engine.Stats()
	if dropped == 0 {
		t.Error("expected dropped counter to increment")
	}
}

func TestEngineRotatedLineClearsTransientAndEmitsLogRotated(t *testing.T) {
	store := NewStore()
	store.StoreJoinRequest("chain1", events.PlayerInfo{EOSID: "eos1"})
	pub := &capturingPublisher{}
	engine := NewEngine(store, pub)
	src := newFakeSource()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, src)

	src.lines <- logsource.Line{Rotated: true}

	deadline := time.After(2 * time.Second)
	for {
		if len(pub.published) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for LOG_ROTATED")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if pub.published[0].Kind != events.KindLogRotated {
		t.Errorf("expected LOG_ROTATED, got %s", pub.published[0].Kind)
	}
	if _, ok := store.TakeJoinRequest("chain1"); ok {
		t.Fatal("expected join requests cleared by rotation")
	}
}
