package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/paulpham157/neptune-fetcher/internal/core/domain"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeProtobuf = "application/x-protobuf"

	maxErrorBody = 512
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	Name      string
	BaseURL   string
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// HTTPProvider implements Provider for the HTTP query API.
type HTTPProvider struct {
	*BaseProvider
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

// NewHTTPProvider creates a new HTTP-based provider.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	return &HTTPProvider{
		BaseProvider: NewBaseProvider(cfg.Name),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		userAgent:    cfg.UserAgent,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Execute posts op.Body as JSON to op.Path and decodes the response into out.
// A nil out discards the body.
func (p *HTTPProvider) Execute(ctx context.Context, op Operation, out any) error {
	start := time.Now()
	err := p.execute(ctx, op, out)

	switch {
	case err == nil:
		p.RecordSuccess(op, time.Since(start))
	case ctx.Err() != nil:
		// Cancelled by the caller.
	case IsInaccessible(err):
		p.RecordFailure(op, CategoryNotFoundOrInaccessible)
	case IsTransient(err):
		p.RecordFailure(op, CategoryTransient)
	default:
		p.RecordFailure(op, CategoryOtherFatal)
	}
	return err
}

func (p *HTTPProvider) execute(ctx context.Context, op Operation, out any) error {
	// Pre-call checks
	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled {
		retryAfter := p.Monitor.GetRetryAfter()
		return &TransportError{
			Category:   CategoryTransient,
			Message:    fmt.Sprintf("provider throttled, retry after: %v", retryAfter),
			RetryAfter: retryAfter,
		}
	}

	jsonData, err := json.Marshal(op.Body)
	if err != nil {
		return &TransportError{Category: CategoryOtherFatal, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+op.Path, bytes.NewReader(jsonData))
	if err != nil {
		return &TransportError{Category: CategoryOtherFatal, Message: "create request", Err: err}
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	if op.Protobuf {
		req.Header.Set("Accept", contentTypeProtobuf+", "+contentTypeJSON)
	} else {
		req.Header.Set("Accept", contentTypeJSON)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Category: CategoryTransient, Message: op.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Category: CategoryTransient, Message: "read response", Err: err}
	}

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := p.Monitor.RecordThrottle(resp.Header.Get("Retry-After"))
		return &TransportError{
			Category:   CategoryTransient,
			StatusCode: resp.StatusCode,
			Message:    "rate limited",
			RetryAfter: retryAfter,
			Err:        statusError(resp.Header.Get("Content-Type"), body),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if err := statusError(resp.Header.Get("Content-Type"), body); err != nil {
			return &TransportError{
				Category:   CategorizeStatus(resp.StatusCode),
				StatusCode: resp.StatusCode,
				Message:    status.Convert(err).Message(),
				Err:        err,
			}
		}
		msg := parseErrorMessage(body)
		category := CategorizeStatus(resp.StatusCode)
		if category == CategoryOtherFatal && p.Monitor.DetectThrottlePattern(msg) {
			category = CategoryTransient
		}
		return &TransportError{Category: category, StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := decodeBody(resp.Header.Get("Content-Type"), body, out); err != nil {
				return &domain.UnexpectedResponseError{Status: resp.StatusCode, Body: truncate(string(body)), Err: err}
		}
	}
	return nil
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func decodeBody(contentType string, body []byte, out any) error {
	if strings.HasPrefix(contentType, contentTypeProtobuf) {
		return decodeProtoStruct(body, out)
	}
	return json.Unmarshal(body, out)
}

// decodeProtoStruct decodes a protobuf-encoded google.protobuf.Struct by
// re-encoding it as JSON, so callers share one set of response types.
func decodeProtoStruct(body []byte, out any) error {
	var s structpb.Struct
	if err := proto.Unmarshal(body, &s); err != nil {
		return fmt.Errorf("unmarshal protobuf: %w", err)
	}
	data, err := protojson.Marshal(&s)
	if err != nil {
		return fmt.Errorf("protobuf to json: %w", err)
	}
	return json.Unmarshal(data, out)
}

// statusError decodes a protobuf google.rpc.Status error body. It returns nil
// for any other body.
func statusError(contentType string, body []byte) error {
	if !strings.HasPrefix(contentType, contentTypeProtobuf) || len(body) == 0 {
		return nil
	}
	var st spb.Status
	if err := proto.Unmarshal(body, &st); err != nil || st.GetCode() == 0 {
		return nil
	}
	return status.ErrorProto(&st)
}

func parseErrorMessage(body []byte) string {
	var envelope struct {
		Message   string `json:"message"`
		Title     string `json:"title"`
		ErrorType string `json:"errorType"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Title != "":
			return envelope.Title
		case envelope.ErrorType != "":
			return envelope.ErrorType
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
