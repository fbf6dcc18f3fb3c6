package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"TelemetryHubAPI/internal/logger"
	"TelemetryHubAPI/internal/models"
)

// Notifier is the outbound operator channel. Delivery is fire-and-forget:
// implementations log failures and callers never fail a pass because of one.
type Notifier interface {
	StallAlert(ctx context.Context, stalls []models.StalledStream) error
	RecoveryAlert(ctx context.Context, stream string) error
	ThresholdAlert(ctx context.Context, breach models.ThresholdBreach) error
	ArchiveErrors(ctx context.Context, date string, errs []string) error
	HourlyReport(ctx context.Context, report models.HourlyReport) error
}

// WebhookClient posts text messages to a configured incoming webhook. An
// empty URL disables delivery without failing callers.
type WebhookClient struct {
	webhookURL   string
	dashboardURL string
	httpClient   *http.Client
	log          *logger.Logger
}

func NewWebhookClient(webhookURL, dashboardURL string, log *logger.Logger) *WebhookClient {
	return &WebhookClient{
		webhookURL:   webhookURL,
		dashboardURL: dashboardURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		log:          log,
	}
}

func (c *WebhookClient) post(ctx context.Context, text string) error {
	if c.webhookURL == "" {
		c.log.Warn("Notification webhook not configured, skipping message")
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("Failed to send notification: %v", err)
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Notification webhook returned %d", resp.StatusCode)
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}

	c.log.Debug("Notification delivered")
	return nil
}

// StallAlert sends one coalesced message naming every stalled stream.
func (c *WebhookClient) StallAlert(ctx context.Context, stalls []models.StalledStream) error {
	if len(stalls) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(":warning: Data stream stalled\n")
	for _, s := range stalls {
		fmt.Fprintf(&b, "* %s: no new rows for %d min (%d rows)\n",
			s.Stream, s.MinutesStalled, s.RowCount)
	}
	b.WriteString("Possible causes: Wi-Fi drop, device loop issue, or power interruption")
	if c.dashboardURL != "" {
		fmt.Fprintf(&b, "\nData: %s", c.dashboardURL)
	}

	return c.post(ctx, b.String())
}

func (c *WebhookClient) RecoveryAlert(ctx context.Context, stream string) error {
	return c.post(ctx, fmt.Sprintf(":white_check_mark: Data resumed for %s", stream))
}

func (c *WebhookClient) ThresholdAlert(ctx context.Context, breach models.ThresholdBreach) error {
	msg := fmt.Sprintf(":thermometer: HVAC failure alert: Temperature %.2fC (threshold: %gC) on %s at %s",
		breach.Value, breach.Threshold, breach.Stream, breach.RowTimestamp)
	if c.dashboardURL != "" {
		msg += fmt.Sprintf("\nData: %s", c.dashboardURL)
	}
	return c.post(ctx, msg)
}

func (c *WebhookClient) ArchiveErrors(ctx context.Context, date string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, ":x: Archive pass for %s finished with %d error(s)\n", date, len(errs))
	for _, e := range errs {
		fmt.Fprintf(&b, "* %s\n", e)
	}

	return c.post(ctx, strings.TrimRight(b.String(), "\n"))
}

func (c *WebhookClient) HourlyReport(ctx context.Context, report models.HourlyReport) error {
	lines := []string{fmt.Sprintf(":sun_small_cloud: Hourly report for %s", report.DeviceID)}

	if report.AvgTemperature != nil {
		line := fmt.Sprintf("* Temp: %.1fC", *report.AvgTemperature)
		if report.MaxTemperature != nil && report.MinTemperature != nil {
			line += fmt.Sprintf(" (max: %.1f, min: %.1f)", *report.MaxTemperature, *report.MinTemperature)
		}
		lines = append(lines, line)
	}
	if report.AvgHumidity != nil {
		lines = append(lines, fmt.Sprintf("* Humidity: %.1f%%", *report.AvgHumidity))
	}
	if report.AvgPressure != nil {
		lines = append(lines, fmt.Sprintf("* Pressure: %.1f hPa", *report.AvgPressure))
	}
	if report.AvgGas != nil {
		lines = append(lines, fmt.Sprintf("* Gas: %.1f kOhms", *report.AvgGas))
	}
	lines = append(lines, fmt.Sprintf("* Readings: %d", report.ReadingCount))

	return c.post(ctx, strings.Join(lines, "\n"))
}
