package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

// ThreatDetector screens user input for prompt injection and jailbreak
// attempts before any generation runs.
type ThreatDetector interface {
	DetectThreat(ctx context.Context, messages []string) (bool, error)
}

// HTTPThreatDetector calls an external guard service. The service scores
// each message and flags detected attacks.
type HTTPThreatDetector struct {
	url    string
	apiKey string
	client *http.Client
	log    *logger.Logger
}

func NewHTTPThreatDetector(log *logger.Logger) *HTTPThreatDetector {
	return &HTTPThreatDetector{
		url:    utils.GetEnv("THREAT_DETECTION_API_URL", "https://api.lakera.ai/v2/guard", log),
		apiKey: utils.GetEnv("THREAT_DETECTION_API_KEY", "", log),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With("service", "threat_detector"),
	}
}

type guardRequest struct {
	Messages []guardMessage `json:"messages"`
}

type guardMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type guardResponse struct {
	Flagged bool `json:"flagged"`
}

func (d *HTTPThreatDetector) DetectThreat(ctx context.Context, messages []string) (bool, error) {
	if d.apiKey == "" {
		// Detection disabled: fail open so a missing key never blocks
		// classroom use, but record that the gate is off.
		d.log.Warn("threat detection skipped, no api key configured")
		return false, nil
	}
	payload := guardRequest{}
	for _, msg := range messages {
		payload.Messages = append(payload.Messages, guardMessage{Role: "user", Content: msg})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("threat detection request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("threat detection returned status %d", resp.StatusCode)
	}
	var out guardResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode threat detection response: %w", err)
	}
	return out.Flagged, nil
}
