package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/web3guy0/trailguard/types"
)

type recordingHandler struct {
	got chan types.Signal
}

func (h *recordingHandler) HandleSignal(ctx context.Context, sig types.Signal) error {
	h.got <- sig
	return nil
}

func post(t *testing.T, url, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(url+"/hook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_AcceptsAuthenticatedSignal(t *testing.T) {
	h := &recordingHandler{got: make(chan types.Signal, 1)}
	s := NewServer(":0", "secret", h, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunWorker(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, body := post(t, srv.URL, `{"auth_id":"secret","action":"long_entry","order_type":"limit","limit_backtrace_percent":0.5,"limit_cancel_time_seconds":30}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, expected 202", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v, expected status ok", body)
	}

	select {
	case sig := <-h.got:
		if sig.Action != types.ActionLongEntry || sig.OrderType != "limit" || sig.LimitCancelTimeSeconds != 30 {
			t.Errorf("signal = %+v", sig)
		}
		if sig.LimitBacktracePercent == nil || sig.LimitBacktracePercent.String() != "0.5" {
			t.Errorf("LimitBacktracePercent = %v, expected 0.5", sig.LimitBacktracePercent)
		}
	case <-time.After(time.Second):
		t.Fatal("signal never reached the handler")
	}
}

func TestServer_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"wrong auth", http.MethodPost, `{"auth_id":"nope","action":"long_entry"}`, http.StatusUnauthorized},
		{"missing auth", http.MethodPost, `{"action":"long_entry"}`, http.StatusUnauthorized},
		{"bad json", http.MethodPost, `{"auth_id":`, http.StatusBadRequest},
		{"unknown action", http.MethodPost, `{"auth_id":"secret","action":"moon"}`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{got: make(chan types.Signal, 1)}
			s := NewServer(":0", "secret", h, 4)
			srv := httptest.NewServer(s.Handler())
			defer srv.Close()

			req, _ := http.NewRequest(tt.method, srv.URL+"/hook", strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Errorf("status = %d, expected %d", resp.StatusCode, tt.code)
			}
			if len(s.queue) != 0 {
				t.Error("rejected request was queued")
			}
		})
	}
}

func TestServer_QueueFull(t *testing.T) {
	s := NewServer(":0", "secret", &recordingHandler{got: make(chan types.Signal)}, 1)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	if resp, _ := post(t, srv.URL, `{"auth_id":"secret","action":"long_exit"}`); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d, expected 202", resp.StatusCode)
	}
	if resp, _ := post(t, srv.URL, `{"auth_id":"secret","action":"long_exit"}`); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("second status = %d, expected 503", resp.StatusCode)
	}
}
