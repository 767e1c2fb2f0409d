package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matrixwatcher/watchctl/internal/history"
)

const DefaultTimeout = 5 * time.Second

// Sink indexes supervision events over the OpenSearch document API. Each
// event type lands in its own index (<prefix>-start, <prefix>-stop,
// <prefix>-health) so the streams can carry different retention policies.
type Sink struct {
	client  *http.Client
	baseURL string
	prefix  string
}

// document is the flattened index shape. @timestamp follows the usual
// OpenSearch time-field convention so dashboards pick it up unconfigured.
type document struct {
	Timestamp time.Time `json:"@timestamp"`
	Process   string    `json:"process,omitempty"`
	PID       int       `json:"pid,omitempty"`
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail,omitempty"`
}

func New(baseURL, prefix string) *Sink {
	return NewWithTimeout(baseURL, prefix, DefaultTimeout)
}

func NewWithTimeout(baseURL, prefix string, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sink{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
	}
}

// IndexFor maps an event type to its target index.
func (s *Sink) IndexFor(t history.EventType) string {
	if t == "" {
		return s.prefix
	}
	return s.prefix + "-" + string(t)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(document{
		Timestamp: e.OccurredAt,
		Process:   e.Label,
		PID:       e.PID,
		OK:        e.OK,
		Detail:    e.Detail,
	})
	if err != nil {
		return err
	}

	index := s.IndexFor(e.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/"+index+"/_doc", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch: index %s returned status %d", index, resp.StatusCode)
	}
	return nil
}
