package jsonrpc

import (
	"context"
	"testing"
)

func TestRegistryRequestRoundTrip(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register(Descriptor{
		Method: "textDocument/hover",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			return "hovered", nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	d, ok := reg.LookupRequest("textDocument/hover")
	if !ok {
		t.Fatal("LookupRequest: not found")
	}
	result, err := d.Request(context.Background(), nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if result != "hovered" {
		t.Errorf("result = %v, want %q", result, "hovered")
	}
}

func TestRegistryDuplicateRequestFails(t *testing.T) {
	reg := NewRegistry()
	d := Descriptor{Method: "textDocument/hover", Kind: KindRequest, Request: func(context.Context, RawMessage) (interface{}, error) { return nil, nil }}
	if _, err := reg.Register(d); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := reg.Register(d); err == nil {
		t.Fatal("second Register for the same method: want error, got nil")
	}
}

func TestRegistryNotificationFanOut(t *testing.T) {
	reg := NewRegistry()
	var calls []string
	for _, name := range []string{"a", "b"} {
		n := name
		_, err := reg.Register(Descriptor{
			Method:       "textDocument/didChange",
			Kind:         KindNotification,
			Notification: func(context.Context, RawMessage) { calls = append(calls, n) },
		})
		if err != nil {
			t.Fatalf("Register(%s): %v", n, err)
		}
	}

	descs := reg.LookupNotifications("textDocument/didChange")
	if len(descs) != 2 {
		t.Fatalf("len(descs) = %d, want 2", len(descs))
	}
	for _, d := range descs {
		d.Notification(context.Background(), nil)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b] in registration order", calls)
	}
}

func TestRegistrationReleaseRemovesDescriptor(t *testing.T) {
	reg := NewRegistry()
	reg_, err := reg.Register(Descriptor{Method: "foo", Kind: KindRequest, Request: func(context.Context, RawMessage) (interface{}, error) { return nil, nil }})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg_.Release()
	if _, ok := reg.LookupRequest("foo"); ok {
		t.Error("LookupRequest after Release: found, want not found")
	}

	// Release must be idempotent.
	reg_.Release()
}

func TestLookupMissingMethod(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.LookupRequest("nope"); ok {
		t.Error("LookupRequest for unregistered method: found, want not found")
	}
	if descs := reg.LookupNotifications("nope"); len(descs) != 0 {
		t.Errorf("LookupNotifications for unregistered method: %d results, want 0", len(descs))
	}
}
