package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

func postJSON(ctx context.Context, client *http.Client, url string, body any, extraHeaders map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: encoding payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: posting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// slackAttachment mirrors Slack's legacy attachment shape, which every
// incoming-webhook endpoint still accepts.
type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func sendSlack(ctx context.Context, client *http.Client, webhookURL, channel string, alert Alert) error {
	fields := alertFields(alert)
	slackFields := make([]slackField, 0, len(fields))
	for _, f := range fields {
		slackFields = append(slackFields, slackField{Title: f[0], Value: f[1], Short: true})
	}

	payload := slackPayload{
		Channel: channel,
		Attachments: []slackAttachment{{
			Color:  fmt.Sprintf("#%06x", alert.Severity.ColorHex()),
			Title:  alert.Title,
			Text:   alert.Message,
			Fields: slackFields,
			Footer: alert.Source,
			Ts:     alert.Timestamp.Unix(),
		}},
	}
	return postJSON(ctx, client, webhookURL, payload, nil)
}

// discordEmbed is Discord's webhook embed format.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func sendDiscord(ctx context.Context, client *http.Client, webhookURL string, alert Alert) error {
	fields := alertFields(alert)
	discordFields := make([]discordField, 0, len(fields))
	for _, f := range fields {
		discordFields = append(discordFields, discordField{Name: f[0], Value: f[1], Inline: true})
	}

	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title:       alert.Title,
			Description: alert.Message,
			Color:       alert.Severity.ColorHex(),
			Fields:      discordFields,
			Timestamp:   alert.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		}},
	}
	return postJSON(ctx, client, webhookURL, payload, nil)
}

// teamsPayload uses the MessageCard format accepted by Office 365 connector
// webhooks.
type teamsPayload struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Title      string        `json:"title"`
	Text       string        `json:"text"`
	Sections   []teamsSection `json:"sections,omitempty"`
}

type teamsSection struct {
	Facts []teamsFact `json:"facts"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func sendTeams(ctx context.Context, client *http.Client, webhookURL string, alert Alert) error {
	fields := alertFields(alert)
	facts := make([]teamsFact, 0, len(fields))
	for _, f := range fields {
		facts = append(facts, teamsFact{Name: f[0], Value: f[1]})
	}

	payload := teamsPayload{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: fmt.Sprintf("%06x", alert.Severity.ColorHex()),
		Title:      alert.Title,
		Text:       alert.Message,
		Sections:   []teamsSection{{Facts: facts}},
	}
	return postJSON(ctx, client, webhookURL, payload, nil)
}

type telegramPayload struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func sendTelegram(ctx context.Context, client *http.Client, botToken, chatID string, alert Alert) error {
	text := fmt.Sprintf("*%s*\n%s", alert.Title, alert.Message)
	for _, f := range alertFields(alert) {
		text += fmt.Sprintf("\n_%s_: %s", f[0], f[1])
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken)
	payload := telegramPayload{ChatID: chatID, Text: text, ParseMode: "Markdown"}
	return postJSON(ctx, client, url, payload, nil)
}

// pagerDutyEvent is the Events API v2 trigger payload.
type pagerDutyEvent struct {
	RoutingKey  string               `json:"routing_key"`
	EventAction string               `json:"event_action"`
	Payload     pagerDutyEventPayload `json:"payload"`
}

type pagerDutyEventPayload struct {
	Summary  string         `json:"summary"`
	Source   string         `json:"source"`
	Severity string         `json:"severity"`
	Details  map[string]any `json:"custom_details,omitempty"`
}

func sendPagerDuty(ctx context.Context, client *http.Client, eventsURL, routingKey string, alert Alert) error {
	severity := "info"
	switch alert.Severity {
	case SeverityWarning:
		severity = "warning"
	case SeverityCritical:
		severity = "critical"
	}

	details := map[string]any{}
	for _, f := range alertFields(alert) {
		details[f[0]] = f[1]
	}

	payload := pagerDutyEvent{
		RoutingKey:  routingKey,
		EventAction: "trigger",
		Payload: pagerDutyEventPayload{
			Summary:  alert.Title + ": " + alert.Message,
			Source:   alert.Source,
			Severity: severity,
			Details:  details,
		},
	}
	return postJSON(ctx, client, eventsURL, payload, nil)
}

// opsgenieAlert is the Opsgenie Alert API create-alert payload.
type opsgenieAlert struct {
	Message  string            `json:"message"`
	Alias    string            `json:"alias,omitempty"`
	Priority string            `json:"priority"`
	Details  map[string]string `json:"details,omitempty"`
}

func sendOpsgenie(ctx context.Context, client *http.Client, apiKey, region string, alert Alert) error {
	priority := "P5"
	switch alert.Severity {
	case SeverityWarning:
		priority = "P3"
	case SeverityCritical:
		priority = "P1"
	}

	details := map[string]string{"message": alert.Message}
	for _, f := range alertFields(alert) {
		details[f[0]] = f[1]
	}

	payload := opsgenieAlert{
		Message:  alert.Title,
		Priority: priority,
		Details:  details,
	}

	apiBase := "https://api.opsgenie.com"
	if region == "eu" {
		apiBase = "https://api.eu.opsgenie.com"
	}
	headers := map[string]string{"Authorization": "GenieKey " + apiKey}
	return postJSON(ctx, client, apiBase+"/v2/alerts", payload, headers)
}

// genericPayload is the provider-agnostic wire shape for destinations with
// no provider-specific API, optionally HMAC-signed.
type genericPayload struct {
	Alert Alert `json:"alert"`
}

func sendGeneric(ctx context.Context, client *http.Client, url, secret string, extraHeaders map[string]string, alert Alert) error {
	body, err := json.Marshal(genericPayload{Alert: alert})
	if err != nil {
		return fmt.Errorf("webhook: encoding generic payload: %w", err)
	}

	headers := map[string]string{}
	for k, v := range extraHeaders {
		headers[k] = v
	}
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		headers["X-Prefixd-Signature"] = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: building generic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: posting generic alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: generic destination %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// alertFields flattens the optional domain fields of an Alert into
// label/value pairs for destinations that render structured facts.
func alertFields(alert Alert) [][2]string {
	var fields [][2]string
	if alert.MitigationID != nil {
		fields = append(fields, [2]string{"Mitigation ID", *alert.MitigationID})
	}
	if alert.VictimIP != nil {
		fields = append(fields, [2]string{"Victim IP", *alert.VictimIP})
	}
	if alert.CustomerID != nil {
		fields = append(fields, [2]string{"Customer", *alert.CustomerID})
	}
	if alert.Vector != nil {
		fields = append(fields, [2]string{"Vector", *alert.Vector})
	}
	if alert.ActionType != nil {
		fields = append(fields, [2]string{"Action", *alert.ActionType})
	}
	if alert.POP != nil {
		fields = append(fields, [2]string{"POP", *alert.POP})
	}
	return fields
}
