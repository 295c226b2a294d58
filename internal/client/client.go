package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const generateTimeout = 5 * time.Minute

type Client struct {
	http  *resty.Client
	retry *RetryController
}

func New(baseURL string, logger logrus.FieldLogger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(generateTimeout),
		retry: NewRetryController(logger),
	}
}

// RetryController exposes the controller so callers can observe retries.
func (c *Client) RetryController() *RetryController {
	return c.retry
}

// Generate posts a generation request through the retry controller.
func (c *Client) Generate(ctx context.Context, req *entity.GenerationRequest) (*entity.GenerationResponse, error) {
	return GenerateWithRetry(ctx, c.retry, func(ctx context.Context) (*entity.GenerationResponse, error) {
		return c.generateOnce(ctx, req)
	})
}

// Optimize runs the synchronous optimizer once; it is cheap enough that
// failures are returned without retrying.
func (c *Client) Optimize(ctx context.Context, req *entity.OptimizeRequest) (*entity.OptimizeResponse, error) {
	var out entity.OptimizeResponse
	if err := c.post(ctx, "/api/image/optimize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) generateOnce(ctx context.Context, req *entity.GenerationRequest) (*entity.GenerationResponse, error) {
	var out entity.GenerationResponse
	if err := c.post(ctx, "/api/image/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorBody struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var apiErr errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected response: %s", resp.Status())
		}
		return &HTTPError{StatusCode: resp.StatusCode(), Message: msg, Suggestions: apiErr.Suggestions}
	}
	return nil
}
