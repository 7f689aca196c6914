package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendStreamDeliversFragmentsInOrder(t *testing.T) {
	chunks := []string{"Hello ", "streaming ", "world"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/send" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", got)
		}

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decoding request: %v", err)
		}
		if req.SessionID != "s1" || req.Message != "hi" {
			t.Errorf("Unexpected request body: %+v", req)
		}

		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/plain")
		for _, chunk := range chunks {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 0)

	var got []string
	err := client.SendStream(context.Background(), SendRequest{SessionID: "s1", Message: "hi", Type: "chat"}, func(fragment string) {
		got = append(got, fragment)
	})
	if err != nil {
		t.Fatalf("SendStream failed: %v", err)
	}

	if joined := strings.Join(got, ""); joined != "Hello streaming world" {
		t.Errorf("Expected full concatenation, got %q", joined)
	}
}

func TestSendStreamAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"token expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "stale", 0)
	err := client.SendStream(context.Background(), SendRequest{SessionID: "s1", Message: "hi"}, func(string) {})
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("Expected ErrAuthExpired, got %v", err)
	}
}

func TestSendStreamServerFaultCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"detail": "model is warming up"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", 0)
	err := client.SendStream(context.Background(), SendRequest{SessionID: "s1", Message: "hi"}, func(string) {})
	if !errors.Is(err, ErrServerFault) {
		t.Fatalf("Expected ErrServerFault, got %v", err)
	}
	if !strings.Contains(err.Error(), "model is warming up") {
		t.Errorf("Expected server detail in error, got %q", err.Error())
	}
}

func TestSendStreamTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(srv.URL, "key", 0)
	err := client.SendStream(context.Background(), SendRequest{SessionID: "s1", Message: "hi"}, func(string) {})
	if !errors.Is(err, ErrTransportFailure) {
		t.Errorf("Expected ErrTransportFailure, got %v", err)
	}
}

func TestSendStreamCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(srv.URL, "key", 0)

	errs := make(chan error, 1)
	go func() {
		errs <- client.SendStream(ctx, SendRequest{SessionID: "s1", Message: "hi"}, func(string) {})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendStream did not return after cancel")
	}
}

func TestFetchMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/session/s1/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"messages": []map[string]string{
				{"id": "m1", "sender": "user", "text": "hi"},
				{"id": "m2", "sender": "ai", "text": "hello!"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", 0)
	msgs, err := client.FetchMessages(context.Background(), "s1")
	if err != nil {
		t.Fatalf("FetchMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Sender != "user" || msgs[0].Text != "hi" {
		t.Errorf("Unexpected first message: %+v", msgs[0])
	}
}

func TestFetchMessagesUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", 0)
	if _, err := client.FetchMessages(context.Background(), "s1"); !errors.Is(err, ErrServerFault) {
		t.Errorf("Expected ErrServerFault, got %v", err)
	}
}

func TestContextInfoAndClear(t *testing.T) {
	var cleared bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/session/s1/context" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(ContextInfo{MessageCount: 7, MaxSize: 15})
		case http.MethodDelete:
			cleared = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("Unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "key", 0)

	info, err := client.ContextInfo(context.Background(), "s1")
	if err != nil {
		t.Fatalf("ContextInfo failed: %v", err)
	}
	if info.MessageCount != 7 || info.MaxSize != 15 {
		t.Errorf("Unexpected info: %+v", info)
	}

	if err := client.ClearContext(context.Background(), "s1"); err != nil {
		t.Fatalf("ClearContext failed: %v", err)
	}
	if !cleared {
		t.Error("Expected DELETE to reach the server")
	}
}
