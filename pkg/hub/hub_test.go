package hub

import (
	"context"
	"testing"
	"time"

	"github.com/teslashibe/go-teach/internal/log"
)

func TestHub_RunLifecycle(t *testing.T) {
	h := New("status", log.Discard())
	if h.IsRunning() {
		t.Error("hub should not run before Run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("hub did not start")
	}

	// Broadcasting without clients is a no-op.
	h.Broadcast([]byte("x"))
	if err := h.BroadcastJSON(map[string]int{"ticks": 1}); err != nil {
		t.Errorf("BroadcastJSON() error = %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() || h.ClientCount() != 0 {
		t.Error("hub should be stopped and empty")
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("status", nil)
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("BroadcastJSON should fail on unencodable values")
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("status", log.Discard())
	for i := 0; i < 1000; i++ {
		h.Broadcast([]byte("x"))
	}
}
