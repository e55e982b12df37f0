package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

func newTestProvider(url string) *HTTPProvider {
	return NewHTTPProvider(HTTPConfig{
		Name:      "test",
		BaseURL:   url,
		Token:     "secret",
		UserAgent: "fetcher-test",
		Timeout:   5 * time.Second,
	})
}

func TestHTTPProvider_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/query" {
			t.Errorf("expected path /api/query, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected method POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if r.Header.Get("X-Request-Id") == "" {
			t.Error("expected X-Request-Id header")
		}
		if got := r.Header.Get("User-Agent"); got != "fetcher-test" {
			t.Errorf("unexpected User-Agent %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if body["limit"] != float64(10) {
			t.Errorf("unexpected body %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": []string{"a", "b"}})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	defer p.Close()

	var out struct {
		Entries []string `json:"entries"`
	}
	err := p.Execute(context.Background(), Operation{Name: "query", Path: "/api/query", Body: map[string]int{"limit": 10}}, &out)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(out.Entries) != 2 || out.Entries[1] != "b" {
		t.Errorf("unexpected result %v", out.Entries)
	}
	if h := p.GetHealth(); !h.Available || h.ErrorRate != 0 {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestHTTPProvider_StatusCategories(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Category
	}{
		{"not found", http.StatusNotFound, CategoryNotFoundOrInaccessible},
		{"forbidden", http.StatusForbidden, CategoryNotFoundOrInaccessible},
		{"bad request", http.StatusBadRequest, CategoryOtherFatal},
		{"unauthorized", http.StatusUnauthorized, CategoryOtherFatal},
		{"request timeout", http.StatusRequestTimeout, CategoryTransient},
		{"internal error", http.StatusInternalServerError, CategoryTransient},
		{"bad gateway", http.StatusBadGateway, CategoryTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"something happened"}`))
			}))
			defer server.Close()

			err := newTestProvider(server.URL).Execute(context.Background(), Operation{Path: "/"}, nil)

			var te *TransportError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransportError, got %v", err)
			}
			if te.Category != tt.want {
				t.Errorf("category = %s, want %s", te.Category, tt.want)
			}
			if te.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", te.StatusCode, tt.status)
			}
			if te.Message != "something happened" {
				t.Errorf("message = %q", te.Message)
			}
		})
	}
}

func TestHTTPProvider_RateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	err := p.Execute(context.Background(), Operation{Path: "/"}, nil)

	var te *TransportError
	if !errors.As(err, &te) || te.Category != CategoryTransient {
		t.Fatalf("expected transient TransportError, got %v", err)
	}
	if te.RetryAfter != 30*time.Second {
		t.Errorf("expected 30s retry-after, got %v", te.RetryAfter)
	}

	// The provider is now throttled and must not hit the server again.
	err = p.Execute(context.Background(), Operation{Path: "/"}, nil)
	if !IsTransient(err) {
		t.Errorf("expected transient throttle error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 server call, got %d", calls.Load())
	}
}

func TestHTTPProvider_ProtobufResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "application/json" {
			t.Error("expected protobuf to be accepted")
		}
		s, err := structpb.NewStruct(map[string]any{
			"series": []any{map[string]any{"requestId": "0", "step": 1.5}},
		})
		if err != nil {
			t.Fatalf("NewStruct: %v", err)
		}
		data, _ := proto.Marshal(s)
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	var out struct {
		Series []struct {
			RequestID string  `json:"requestId"`
			Step      float64 `json:"step"`
		} `json:"series"`
	}
	err := newTestProvider(server.URL).Execute(context.Background(), Operation{Path: "/", Protobuf: true}, &out)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(out.Series) != 1 || out.Series[0].RequestID != "0" || out.Series[0].Step != 1.5 {
		t.Errorf("unexpected decoded result %+v", out)
	}
}

func TestHTTPProvider_UndecodableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	var out map[string]any
	err := newTestProvider(server.URL).Execute(context.Background(), Operation{Path: "/"}, &out)

	var ue *domain.UnexpectedResponseError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnexpectedResponseError, got %v", err)
	}
	if ue.Body != "not json" {
		t.Errorf("unexpected body %q", ue.Body)
	}
}

func TestHTTPProvider_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newTestProvider(url).Execute(context.Background(), Operation{Path: "/"}, nil)
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}
