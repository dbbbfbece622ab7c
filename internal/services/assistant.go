package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/classhub/backend/internal/config"
)

// AssistantService proxies prompts to an external text-in/text-out AI
// service. The service is opaque; only its HTTP contract is known here.
type AssistantService struct {
	Config     config.AssistantConfig
	HTTPClient *http.Client
}

func NewAssistantService(cfg config.AssistantConfig) *AssistantService {
	return &AssistantService{
		Config: cfg,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type assistantRequest struct {
	Message string `json:"message"`
}

type assistantResponse struct {
	Reply string `json:"reply"`
}

func (a *AssistantService) Ask(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(assistantRequest{Message: prompt})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(a.Config.URL, "/") + "/v1/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.Config.APIKey)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("assistant request failed: %s", string(body))
	}

	var decoded assistantResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}

	return decoded.Reply, nil
}
