// Package predictor is the HTTP client of a remote masked language model
// inference service.
package predictor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/mchmarny/biasprobe/pkg/net"
	"github.com/mchmarny/biasprobe/pkg/score"
)

const (
	tokenizePath = "/v1/tokenize"
	predictPath  = "/v1/predict"

	DefaultMaxBatch = 64

	noMaskID = -1
)

type tokenizeRequest struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type tokenizeResponse struct {
	IDs         []int `json:"ids"`
	MaskTokenID *int  `json:"mask_token_id"`
}

type predictRequest struct {
	Model   string        `json:"model"`
	Queries []score.Query `json:"queries"`
}

type predictResponse struct {
	LogProbs []float64 `json:"log_probs"`
}

// Client serves one model from a remote endpoint. It is safe for
// concurrent use.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
	maxBatch int
	maskID   atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithMaxBatch caps the number of queries sent in one predict request.
func WithMaxBatch(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

// WithMaskTokenID presets the mask token id instead of learning it from
// the first tokenize response.
func WithMaskTokenID(id int) Option {
	return func(c *Client) {
		c.maskID.Store(int64(id))
	}
}

// New creates a client for model at endpoint using hc for transport.
func New(endpoint, model string, hc *http.Client, opts ...Option) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: predictor endpoint required", bias.ErrInvalidArgument)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: model required", bias.ErrInvalidArgument)
	}
	if hc == nil {
		var err error
		if hc, err = net.GetHTTPClient(net.DefaultTimeout); err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
	}
	c := &Client{
		endpoint: endpoint,
		model:    model,
		http:     hc,
		maxBatch: DefaultMaxBatch,
	}
	c.maskID.Store(noMaskID)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Model is the id of the served model.
func (c *Client) Model() string {
	return c.model
}

// Probe tokenizes an empty text to learn the mask token id.
func (c *Client) Probe(ctx context.Context) error {
	if c.maskID.Load() != noMaskID {
		return nil
	}
	if _, err := c.Tokenize(ctx, ""); err != nil {
		return err
	}
	if c.maskID.Load() == noMaskID {
		return fmt.Errorf("%w: %s did not report a mask token id", bias.ErrPredictionFailure, c.endpoint)
	}
	return nil
}

// Tokenize encodes text with the model's tokenizer.
func (c *Client) Tokenize(ctx context.Context, text string) ([]int, error) {
	var resp tokenizeResponse
	req := &tokenizeRequest{Model: c.model, Text: text}
	if err := net.PostJSON(ctx, c.http, c.endpoint+tokenizePath, req, &resp); err != nil {
		return nil, fmt.Errorf("tokenize with %s: %w", c.model, err)
	}
	if resp.MaskTokenID != nil {
		c.maskID.Store(int64(*resp.MaskTokenID))
	}
	return resp.IDs, nil
}

// MaskTokenID returns the mask token id, or -1 before it is known.
func (c *Client) MaskTokenID() int {
	return int(c.maskID.Load())
}

// PredictLogProb answers a single query.
func (c *Client) PredictLogProb(ctx context.Context, q score.Query) (float64, error) {
	out, err := c.PredictLogProbs(ctx, []score.Query{q})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// PredictLogProbs answers qs in order, in requests of at most the
// configured batch size.
func (c *Client) PredictLogProbs(ctx context.Context, qs []score.Query) ([]float64, error) {
	out := make([]float64, 0, len(qs))
	for start := 0; start < len(qs); start += c.maxBatch {
		end := min(start+c.maxBatch, len(qs))
		chunk := qs[start:end]

		var resp predictResponse
		req := &predictRequest{Model: c.model, Queries: chunk}
		if err := net.PostJSON(ctx, c.http, c.endpoint+predictPath, req, &resp); err != nil {
			return nil, fmt.Errorf("predict with %s: %w", c.model, err)
		}
		if len(resp.LogProbs) != len(chunk) {
			return nil, fmt.Errorf("predict with %s: got %d log-probabilities for %d queries",
				c.model, len(resp.LogProbs), len(chunk))
		}
		out = append(out, resp.LogProbs...)
	}
	slog.Debug("predicted", "model", c.model, "queries", len(qs))
	return out, nil
}
