package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHub_BroadcastReachesClients(t *testing.T) {
	hub := NewSSEHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := make(chan SSEEvent, 1)
	if !hub.add(client) {
		t.Fatal("add returned false on a running hub")
	}

	hub.Broadcast(SSEEvent{Type: "batch_created", Data: "x"})

	select {
	case ev := <-client:
		if ev.Type != "batch_created" {
			t.Errorf("Type = %s, want batch_created", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

func TestSSEHub_ShutdownClosesClients(t *testing.T) {
	hub := NewSSEHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	client := make(chan SSEEvent, 1)
	hub.add(client)

	cancel()

	select {
	case _, open := <-client:
		if open {
			t.Error("expected channel closed, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client channel never closed")
	}

	// post-shutdown operations must not block
	hub.Broadcast(SSEEvent{Type: "batch_created"})
	if hub.add(make(chan SSEEvent)) {
		t.Error("add succeeded on a stopped hub")
	}
}

func TestSSEHub_DropsSlowClients(t *testing.T) {
	hub := NewSSEHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// unbuffered with no reader: the first broadcast must drop it
	client := make(chan SSEEvent)
	hub.add(client)

	hub.Broadcast(SSEEvent{Type: "batch_created"})

	select {
	case _, open := <-client:
		if open {
			t.Error("expected closed channel for slow client")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow client never dropped")
	}
}

func TestSSEHandler_StreamsEvents(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %s, want text/event-stream", ct)
	}

	// the client registers asynchronously, so keep publishing until
	// the stream yields a line
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				srv.Broadcast(SSEEvent{Type: "batch_finished", Data: map[string]string{"batch_id": "b1"}})
			}
		}
	}()

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				lines <- line
			}
		}
	}()

	deadline := time.After(5 * time.Second)
	var event, data bool
	for !(event && data) {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "event: batch_finished") {
				event = true
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, "b1") {
				data = true
			}
		case <-deadline:
			t.Fatalf("stream incomplete: event=%v data=%v", event, data)
		}
	}
}
