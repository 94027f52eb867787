package repositories

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"analysis-worker/domain"
)

// InferenceClient sends sampled frames and a prompt to an Ollama-compatible
// generate endpoint and returns the generated text.
type InferenceClient struct {
	client       *http.Client
	baseURL      string
	model        string
	maxNewTokens int
	timeout      time.Duration
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Images  []string        `json:"images"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict int `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewInferenceClient(baseURL, model string, maxNewTokens int, timeout time.Duration) *InferenceClient {
	return &InferenceClient{
		client:       &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		maxNewTokens: maxNewTokens,
		timeout:      timeout,
	}
}

func (c *InferenceClient) Infer(ctx context.Context, batch domain.FrameBatch, prompt string) (string, error) {
	if len(batch.Frames) == 0 {
		return "", fmt.Errorf("%w: empty frame batch", domain.ErrInferenceFailure)
	}
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrInferenceFailure)
	}

	images, err := encodeFrames(batch)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInferenceFailure, err)
	}

	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Images:  images,
		Stream:  false,
		Options: generateOptions{NumPredict: c.maxNewTokens},
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %w", domain.ErrInferenceFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInferenceFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.requestError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.requestError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status code %d: %s", domain.ErrInferenceFailure, resp.StatusCode, truncate(string(data), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %w", domain.ErrInferenceFailure, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrInferenceFailure, out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrInferenceFailure)
	}
	return out.Response, nil
}

// HealthCheck verifies the inference engine is reachable.
func (c *InferenceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("inference engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference engine health check failed, status code: %d", resp.StatusCode)
	}
	return nil
}

func (c *InferenceClient) requestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: no response after %s", domain.ErrInferenceTimeout, c.timeout)
	}
	return fmt.Errorf("%w: %w", domain.ErrInferenceFailure, err)
}

func encodeFrames(batch domain.FrameBatch) ([]string, error) {
	images := make([]string, 0, len(batch.Frames))
	for _, frame := range batch.Frames {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, frame.Image, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return nil, fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	return images, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
