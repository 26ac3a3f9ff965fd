package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := MessagesInbound
	Init()
	if MessagesInbound != first {
		t.Error("second Init replaced the registered collectors")
	}
	if MessagesInbound == nil || StreamsActive == nil || ConnectedClients == nil {
		t.Error("collectors not initialized")
	}
}

func TestObserveAPIRequest(t *testing.T) {
	Init()
	// Must not panic for either outcome.
	ObserveAPIRequest("GET", 12*time.Millisecond, true)
	ObserveAPIRequest("POST", 12*time.Millisecond, false)
}

func TestTimeFunc(t *testing.T) {
	ran := false
	d := TimeFunc(nil, func() { ran = true })
	if !ran {
		t.Error("fn not invoked")
	}
	if d < 0 {
		t.Errorf("negative duration %v", d)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("correlation id on fresh context")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("nil logger")
	}
}
