package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider talks to a face detection sidecar that exposes POST /descriptor.
type HTTPProvider struct {
	BaseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if baseURL == "" {
		baseURL = "http://localhost:8500"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		BaseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ DescriptorProvider = (*HTTPProvider)(nil)

type descriptorRequest struct {
	Image string `json:"image"`
}

type descriptorResponse struct {
	Faces      int       `json:"faces"`
	Descriptor []float64 `json:"descriptor"`
}

func (p *HTTPProvider) Extract(ctx context.Context, image []byte) ([]float64, error) {
	body, err := json.Marshal(descriptorRequest{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/descriptor", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return nil, ErrModelUnavailable
	default:
		return nil, fmt.Errorf("face model error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out descriptorResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	if out.Faces == 0 || len(out.Descriptor) == 0 {
		return nil, nil
	}
	return out.Descriptor, nil
}
