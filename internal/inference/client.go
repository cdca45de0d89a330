// Package inference talks to the text-classification runtime that hosts the
// tokenizer and model. The runtime is a separate process; this package only
// knows its HTTP contract.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrLoad is returned when the model cannot be made available.
	ErrLoad = errors.New("model load failed")
	// ErrRuntime is returned when an inference call fails.
	ErrRuntime = errors.New("runtime call failed")
)

// RawPrediction is the top-ranked runtime output for one input. Label and
// Score are nil when the runtime returned nothing for that input.
type RawPrediction struct {
	Label *string
	Score *float64
}

// Handle is a loaded model. Implementations must be safe for concurrent use.
type Handle interface {
	Infer(ctx context.Context, texts []string) ([]RawPrediction, error)
	ModelID() string
	Device() string
}

// Runtime loads models by repository id.
type Runtime interface {
	Load(ctx context.Context, repoID string) (Handle, error)
}

// Client is a client for the classification runtime API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// InfoResponse represents /info
type InfoResponse struct {
	ModelID  string `json:"model_id"`
	Device   string `json:"device"`
	MaxBatch int    `json:"max_batch,omitempty"`
}

// PredictRequest represents the /predict body
type PredictRequest struct {
	Inputs []string `json:"inputs"`
}

// LabelScore is one ranked entry of a runtime prediction
type LabelScore struct {
	Label *string  `json:"label"`
	Score *float64 `json:"score"`
}

// NewClient creates a new runtime client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Load asks the runtime which model it serves and returns a handle when it
// matches repoID.
func (c *Client) Load(ctx context.Context, repoID string) (Handle, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	if info.ModelID != repoID {
		return nil, fmt.Errorf("%w: runtime serves %q, want %q", ErrLoad, info.ModelID, repoID)
	}

	device := info.Device
	if device == "" {
		device = "cpu"
	}

	return &handle{
		client:   c,
		modelID:  info.ModelID,
		device:   device,
		maxBatch: info.MaxBatch,
	}, nil
}

// Info retrieves information about the loaded model
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result InfoResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Predict sends one request for all inputs and returns one ranked list per input.
func (c *Client) Predict(ctx context.Context, inputs []string) ([][]LabelScore, error) {
	jsonData, err := json.Marshal(PredictRequest{Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result [][]LabelScore
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("runtime returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type handle struct {
	client   *Client
	modelID  string
	device   string
	maxBatch int
}

func (h *handle) ModelID() string { return h.modelID }

func (h *handle) Device() string { return h.device }

// Infer runs the model once over texts. Results are in input order.
func (h *handle) Infer(ctx context.Context, texts []string) ([]RawPrediction, error) {
	if h.maxBatch > 0 && len(texts) > h.maxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds runtime limit %d", ErrRuntime, len(texts), h.maxBatch)
	}

	ranked, err := h.client.Predict(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuntime, err)
	}

	if len(ranked) != len(texts) {
		return nil, fmt.Errorf("%w: got %d results for %d inputs", ErrRuntime, len(ranked), len(texts))
	}

	out := make([]RawPrediction, len(ranked))
	for i, entries := range ranked {
		if len(entries) == 0 {
			continue
		}
		out[i] = RawPrediction{Label: entries[0].Label, Score: entries[0].Score}
	}

	return out, nil
}
