package jsonrpc

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOutputHandlerPreservesOrder(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	oh := NewOutputHandler(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))

	for i := 0; i < 5; i++ {
		if err := oh.Send([]byte{byte('0' + i)}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if err := oh.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if buf.String() != "01234" {
		t.Errorf("written = %q, want %q", buf.String(), "01234")
	}
}

func TestOutputHandlerStopIsIdempotent(t *testing.T) {
	oh := NewOutputHandler(writerFunc(func(p []byte) (int, error) { return len(p), nil }))
	if err := oh.Stop(time.Second); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := oh.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestOutputHandlerSendAfterStopFails(t *testing.T) {
	oh := NewOutputHandler(writerFunc(func(p []byte) (int, error) { return len(p), nil }))
	if err := oh.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := oh.Send([]byte("late")); err == nil {
		t.Error("Send after Stop: want error, got nil")
	}
}

func TestOutputHandlerWriteFailurePropagates(t *testing.T) {
	wantErr := errors.New("boom")
	oh := NewOutputHandler(writerFunc(func(p []byte) (int, error) { return 0, wantErr }))

	if err := oh.Send([]byte("x")); err != nil {
		t.Fatalf("first Send should enqueue without error: %v", err)
	}
	// Give the drain goroutine a chance to observe the write failure.
	time.Sleep(20 * time.Millisecond)

	if err := oh.Send([]byte("y")); !errors.Is(err, wantErr) {
		t.Errorf("Send after a failed write = %v, want %v", err, wantErr)
	}
	oh.Stop(time.Second)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
