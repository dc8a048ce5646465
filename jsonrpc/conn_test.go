package jsonrpc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gossip-lsp/gossip/jsonrpc"
	"github.com/gossip-lsp/gossip/transport"
)

func TestConnCallRoundTrip(t *testing.T) {
	clientT, serverT := transport.MemoryPipe()
	server := jsonrpc.NewConn(serverT)
	server.Register(jsonrpc.Descriptor{
		Method: "add",
		Kind:   jsonrpc.KindRequest,
		Request: func(ctx context.Context, params jsonrpc.RawMessage) (interface{}, error) {
			var args [2]int
			if err := json.Unmarshal(params, &args); err != nil {
				return nil, err
			}
			return args[0] + args[1], nil
		},
	})

	client := jsonrpc.NewConn(clientT)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	resp, err := client.Call(context.Background(), "add", []int{2, 3})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var sum int
	if err := json.Unmarshal(resp.Result, &sum); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if sum != 5 {
		t.Errorf("sum = %d, want 5", sum)
	}

	client.Close()
	server.Close()
}

func TestConnNotifyIsDeliveredToOtherSide(t *testing.T) {
	clientT, serverT := transport.MemoryPipe()
	received := make(chan string, 1)
	server := jsonrpc.NewConn(serverT)
	server.Register(jsonrpc.Descriptor{
		Method: "ping",
		Kind:   jsonrpc.KindNotification,
		Notification: func(ctx context.Context, params jsonrpc.RawMessage) {
			received <- string(params)
		},
	})

	client := jsonrpc.NewConn(clientT)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	if err := client.Notify(context.Background(), "ping", "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case got := <-received:
		if got != `"hello"` {
			t.Errorf("params = %s, want %q", got, `"hello"`)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}

	client.Close()
	server.Close()
}

func TestConnCloseFailsPendingCalls(t *testing.T) {
	clientT, serverT := transport.MemoryPipe()
	block := make(chan struct{})
	server := jsonrpc.NewConn(serverT)
	server.Register(jsonrpc.Descriptor{
		Method: "hang",
		Kind:   jsonrpc.KindRequest,
		Request: func(ctx context.Context, params jsonrpc.RawMessage) (interface{}, error) {
			<-block
			return nil, nil
		},
	})

	client := jsonrpc.NewConn(clientT)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "hang", nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()
	close(block)

	select {
	case err := <-done:
		if err == nil {
			t.Error("Call after Close: want error, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Call to fail after Close")
	}

	server.Close()
}

func TestConnFallbackServesUnregisteredMethod(t *testing.T) {
	clientT, serverT := transport.MemoryPipe()
	server := jsonrpc.NewConn(serverT)
	server.SetFallback(func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
		return method, nil
	}, nil)

	client := jsonrpc.NewConn(clientT)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	resp, err := client.Call(context.Background(), "workspace/whatever", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var method string
	if err := json.Unmarshal(resp.Result, &method); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if method != "workspace/whatever" {
		t.Errorf("result = %q, want %q", method, "workspace/whatever")
	}

	client.Close()
	server.Close()
}
