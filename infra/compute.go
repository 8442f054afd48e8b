package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tnqbao/gau-ml-service/config"
)

type EndpointKind string

const (
	EndpointTrain   EndpointKind = "train"
	EndpointPredict EndpointKind = "predict"
	EndpointDelete  EndpointKind = "delete"
)

// RemoteTransportError covers every way a call to the compute provider can
// fail before a usable JSON document comes back: network errors, non-2xx
// statuses and bodies that are not JSON.
type RemoteTransportError struct {
	Kind       EndpointKind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteTransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("compute %s %s returned %d: %s", e.Kind, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("compute %s %s failed: %v", e.Kind, e.Op, e.Err)
}

func (e *RemoteTransportError) Unwrap() error {
	return e.Err
}

type SubmitResult struct {
	CorrelationID string
	RemoteID      string
	Raw           json.RawMessage
}

type submitRequest struct {
	ID    string      `json:"id"`
	Input interface{} `json:"input"`
}

type ComputeService struct {
	endpoints map[EndpointKind]string
	apiKey    string
	client    *http.Client
	now       func() time.Time
}

func InitComputeService(cfg *config.EnvConfig) *ComputeService {
	if cfg.Compute.TrainURL == "" || cfg.Compute.PredictURL == "" || cfg.Compute.DeleteURL == "" {
		panic("Compute endpoints (URL_TRAIN, URL_PREDICT, URL_DELETE) are not configured")
	}
	if cfg.Compute.APIKey == "" {
		panic("Compute API key (RUNPOD_KEY) is not configured")
	}

	return NewComputeService(map[EndpointKind]string{
		EndpointTrain:   cfg.Compute.TrainURL,
		EndpointPredict: cfg.Compute.PredictURL,
		EndpointDelete:  cfg.Compute.DeleteURL,
	}, cfg.Compute.APIKey, &http.Client{Timeout: cfg.Compute.Timeout})
}

func NewComputeService(endpoints map[EndpointKind]string, apiKey string, client *http.Client) *ComputeService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ComputeService{
		endpoints: endpoints,
		apiKey:    apiKey,
		client:    client,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for correlation ids.
func (s *ComputeService) WithClock(now func() time.Time) *ComputeService {
	s.now = now
	return s
}

// CorrelationID has the shape job-{owner}-{record}-{unix seconds with fraction}.
func (s *ComputeService) CorrelationID(ownerKey string, recordID uint) string {
	now := s.now()
	ts := float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second)
	return fmt.Sprintf("job-%s-%d-%s", ownerKey, recordID, strconv.FormatFloat(ts, 'f', -1, 64))
}

// Submit posts {id, input} to {base}/run. A response without a remote id is
// not an error here; the caller decides what a missing id means.
func (s *ComputeService) Submit(ctx context.Context, kind EndpointKind, ownerKey string, recordID uint, input interface{}) (*SubmitResult, error) {
	base, err := s.baseURL(kind)
	if err != nil {
		return nil, err
	}

	correlationID := s.CorrelationID(ownerKey, recordID)
	body, err := json.Marshal(submitRequest{ID: correlationID, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	raw, err := s.do(ctx, kind, "submit", http.MethodPost, base+"/run", body)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		CorrelationID: correlationID,
		RemoteID:      remoteJobID(raw),
		Raw:           raw,
	}, nil
}

// Poll fetches {base}/status/{remoteID} and returns the document untouched.
func (s *ComputeService) Poll(ctx context.Context, kind EndpointKind, remoteID string) (json.RawMessage, error) {
	if remoteID == "" {
		return nil, errors.New("remote job id is required")
	}
	base, err := s.baseURL(kind)
	if err != nil {
		return nil, err
	}
	return s.do(ctx, kind, "poll", http.MethodGet, base+"/status/"+url.PathEscape(remoteID), nil)
}

func (s *ComputeService) baseURL(kind EndpointKind) (string, error) {
	base, ok := s.endpoints[kind]
	if !ok || base == "" {
		return "", fmt.Errorf("no compute endpoint configured for %q", kind)
	}
	return base, nil
}

func (s *ComputeService) do(ctx context.Context, kind EndpointKind, op, method, target string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &RemoteTransportError{Kind: kind, Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &RemoteTransportError{Kind: kind, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteTransportError{Kind: kind, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteTransportError{Kind: kind, Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if !json.Valid(raw) {
		return nil, &RemoteTransportError{Kind: kind, Op: op, Err: errors.New("response is not valid JSON")}
	}

	return json.RawMessage(raw), nil
}

func remoteJobID(raw json.RawMessage) string {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.ID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(envelope.ID, &id); err != nil {
		return ""
	}
	return id
}
