package progress

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHubPublishWithNoClientsDoesNotBlock(t *testing.T) {
	h := NewHub(zerolog.Nop())
	stop := make(chan struct{})
	go h.Run(stop)
	defer close(stop)

	done := make(chan struct{})
	go func() {
		h.Publish(Event{EpisodeID: "ep-1", Stage: "c1analyzer", Status: "started"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no clients connected")
	}
}

func TestHubClientCountStartsZero(t *testing.T) {
	h := NewHub(zerolog.Nop())
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", h.ClientCount())
	}
}
