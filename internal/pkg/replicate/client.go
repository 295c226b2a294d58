// Package replicate talks to the Replicate HTTP API: it creates predictions,
// polls them to completion, uploads inputs through the Files API and fetches
// generated assets.
package replicate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/retry"
)

const (
	DefaultBaseURL          = "https://api.replicate.com/v1"
	DefaultPollInterval     = time.Second
	DefaultPollTimeout      = 60 * time.Second
	DefaultMaxDownloadBytes = 10 * 1024 * 1024

	downloadAttempts  = 3
	downloadBaseDelay = time.Second
	pollAttempts      = 3
	pollBaseDelay     = time.Second
	requestTimeout    = 30 * time.Second
)

// statusError is a non-2xx answer from the API. It unwraps to
// ErrPredictionFailed.
type statusError struct {
	op      string
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s: status %d: %s", entity.ErrPredictionFailed, e.op, e.status, e.message)
}

func (e *statusError) Unwrap() error {
	return entity.ErrPredictionFailed
}

// isTransient reports whether a request may succeed when repeated: transport
// failures, 429 and 5xx answers. Context cancellation is final.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= http.StatusInternalServerError
	}
	return true
}

type Options struct {
	APIToken         string
	BaseURL          string
	PollInterval     time.Duration
	PollTimeout      time.Duration
	MaxDownloadBytes int64
	ModelVersions    map[string]string
}

type Client struct {
	api        *resty.Client
	downloader *resty.Client
	opts       Options
	logger     logrus.FieldLogger

	sleep retry.Sleeper
	now   func() time.Time
}

func NewClient(opts Options, logger logrus.FieldLogger) (*Client, error) {
	if opts.APIToken == "" {
		return nil, entity.ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.MaxDownloadBytes <= 0 {
		opts.MaxDownloadBytes = DefaultMaxDownloadBytes
	}

	api := resty.New().
		SetBaseURL(opts.BaseURL).
		SetAuthToken(opts.APIToken).
		SetHeader("Accept", "application/json").
		SetTimeout(requestTimeout)

	return &Client{
		api:        api,
		downloader: resty.New().SetTimeout(requestTimeout),
		opts:       opts,
		logger:     logger,
		sleep:      retry.Sleep,
		now:        time.Now,
	}, nil
}

// Model resolves a model id against the registry and configured versions.
func (c *Client) Model(id string) (Model, error) {
	return LookupModel(id, c.opts.ModelVersions)
}

// CreatePrediction starts a prediction. Pinned models go through
// /predictions with a version, official ones through their model endpoint.
func (c *Client) CreatePrediction(ctx context.Context, model Model, input map[string]any) (*Prediction, error) {
	body := map[string]any{"input": input}
	path := fmt.Sprintf("/models/%s/%s/predictions", model.Owner, model.Name)
	if model.Version != "" {
		body["version"] = model.Version
		path = "/predictions"
	}

	var pred Prediction
	var apiErr apiError
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&pred).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	if resp.IsError() {
		return nil, &statusError{op: "create prediction", status: resp.StatusCode(), message: apiErr.message()}
	}

	c.logger.WithFields(logrus.Fields{
		"model":         model.ID,
		"prediction_id": pred.ID,
		"status":        pred.Status,
	}).Info("Prediction created")

	return &pred, nil
}

func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var pred Prediction
	var apiErr apiError
	resp, err := c.api.R().
		SetContext(ctx).
		SetResult(&pred).
		SetError(&apiErr).
		Get("/predictions/" + id)
	if err != nil {
		return nil, fmt.Errorf("get prediction %s: %w", id, err)
	}
	if resp.IsError() {
		return nil, &statusError{op: "get prediction " + id, status: resp.StatusCode(), message: apiErr.message()}
	}
	return &pred, nil
}

// WaitForPrediction polls until the prediction finishes or the poll timeout
// elapses. A failed or canceled prediction is returned as ErrPredictionFailed
// carrying the provider message. Transient poll failures are retried a few
// times within the same deadline; 4xx answers end the wait.
func (c *Client) WaitForPrediction(ctx context.Context, pred *Prediction) (*Prediction, error) {
	deadline := c.now().Add(c.opts.PollTimeout)
	current := pred

	for {
		if current.Done() {
			break
		}
		if !c.now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", entity.ErrPredictionTimeout, pred.ID, c.opts.PollTimeout)
		}
		if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
			return nil, err
		}

		next, err := c.poll(ctx, pred.ID, deadline)
		if err != nil {
			return nil, err
		}
		current = next

		c.logger.WithFields(logrus.Fields{
			"prediction_id": current.ID,
			"status":        current.Status,
		}).Debug("Polled prediction")
	}

	if current.Status != StatusSucceeded {
		msg := current.ErrorMessage()
		if msg == "" {
			msg = current.Status
		}
		return current, fmt.Errorf("%w: %s", entity.ErrPredictionFailed, msg)
	}
	return current, nil
}

func (c *Client) poll(ctx context.Context, id string, deadline time.Time) (*Prediction, error) {
	var pred *Prediction

	policy := retry.LinearPolicy{
		Attempts:  pollAttempts,
		BaseDelay: pollBaseDelay,
		Sleep:     c.sleep,
		Retryable: func(err error) bool {
			return isTransient(err) && c.now().Before(deadline)
		},
		OnRetry: func(attempt int, err error) {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"prediction_id": id,
				"attempt":       attempt,
			}).Warn("Poll failed, retrying")
		},
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		next, err := c.GetPrediction(ctx, id)
		if err != nil {
			return err
		}
		pred = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pred, nil
}

// Download fetches a generated asset, giving up after three attempts spaced
// linearly. Assets above the download limit are rejected without retrying.
func (c *Client) Download(ctx context.Context, url string) (entity.EncodedImage, error) {
	var img entity.EncodedImage

	policy := retry.LinearPolicy{
		Attempts:  downloadAttempts,
		BaseDelay: downloadBaseDelay,
		Sleep:     c.sleep,
		Retryable: func(err error) bool { return !errors.Is(err, entity.ErrDownloadTooLarge) },
		OnRetry: func(attempt int, err error) {
			c.logger.WithError(err).WithField("attempt", attempt).Warn("Download failed, retrying")
		},
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		data, err := c.fetch(ctx, url)
		if err != nil {
			return err
		}
		img = entity.NewEncodedImage(data)
		return nil
	})
	if err != nil {
		return entity.EncodedImage{}, err
	}
	return img, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.downloader.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode())
	}

	limit := c.opts.MaxDownloadBytes
	if cl := resp.RawResponse.ContentLength; cl > limit {
		return nil, fmt.Errorf("%w: content length %d", entity.ErrDownloadTooLarge, cl)
	}

	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", entity.ErrDownloadTooLarge, limit)
	}
	return data, nil
}

// UploadFile stores an input through the Files API and returns the file id
// and the URL predictions can reference.
func (c *Client) UploadFile(ctx context.Context, img entity.EncodedImage, filename string) (string, string, error) {
	var file fileResponse
	var apiErr apiError
	resp, err := c.api.R().
		SetContext(ctx).
		SetMultipartField("content", filename, img.MIMEType, bytes.NewReader(img.Data)).
		SetResult(&file).
		SetError(&apiErr).
		Post("/files")
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", entity.ErrUploadFailed, err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("%w: status %d: %s", entity.ErrUploadFailed, resp.StatusCode(), apiErr.message())
	}
	if file.URLs.Get == "" {
		return "", "", fmt.Errorf("%w: response carried no url", entity.ErrUploadFailed)
	}
	return file.ID, file.URLs.Get, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	resp, err := c.api.R().
		SetContext(ctx).
		Delete("/files/" + id)
	if err != nil {
		return err
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("delete file %s: status %d", id, resp.StatusCode())
	}
	return nil
}
