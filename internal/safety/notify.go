package safety

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

// WebhookNotifier posts ban events to an operations webhook so someone
// reviews every automated ban. Without a configured URL it is a no-op.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *logger.Logger
}

func NewWebhookNotifier(log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    utils.GetEnv("SAFETY_OPS_WEBHOOK_URL", "", log),
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With("service", "safety_notifier"),
	}
}

func (n *WebhookNotifier) NotifyUserBan(dbc dbctx.Context, userID string) error {
	if n.url == "" {
		n.log.Warn("ban notification skipped, no webhook configured", "user_id", userID)
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"event":   "user_banned",
		"user_id": userID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(dbc.Ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ban notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ban notification returned status %d", resp.StatusCode)
	}
	return nil
}
