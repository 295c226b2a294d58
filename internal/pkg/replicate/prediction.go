package replicate

import (
	"encoding/json"
	"fmt"

	"github.com/yurufuwayuya/visual-prompt-builder/internal/entity"
)

const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

type Prediction struct {
	ID      string          `json:"id"`
	Model   string          `json:"model,omitempty"`
	Version string          `json:"version,omitempty"`
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   any             `json:"error,omitempty"`
	Logs    string          `json:"logs,omitempty"`
	Metrics struct {
		PredictTime float64 `json:"predict_time"`
	} `json:"metrics"`
}

// Done reports whether the prediction reached a terminal status.
func (p *Prediction) Done() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ErrorMessage flattens the provider error field into text.
func (p *Prediction) ErrorMessage() string {
	switch e := p.Error.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		raw, _ := json.Marshal(e)
		return string(raw)
	}
}

// OutputURL returns the first generated image URL. Models answer with either
// a single string or a list of strings.
func (p *Prediction) OutputURL() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", entity.ErrEmptyOutput
	}

	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return "", entity.ErrEmptyOutput
		}
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(p.Output, &many); err != nil {
		return "", fmt.Errorf("%w: unexpected output %s", entity.ErrEmptyOutput, string(p.Output))
	}
	for _, u := range many {
		if u != "" {
			return u, nil
		}
	}
	return "", entity.ErrEmptyOutput
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func (e *apiError) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

type fileResponse struct {
	ID   string `json:"id"`
	URLs struct {
		Get string `json:"get"`
	} `json:"urls"`
}
