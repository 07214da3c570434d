package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lance0/prefixd-sub000/internal/config"
)

// Destination is one configured fan-out target and its configuration;
// sendOnce picks the payload encoder from Type.
type Destination struct {
	Type string
	cfg  config.DestinationConfig
}

// Dispatcher fans an Alert out to every configured destination, each as a
// detached goroutine with its own 3-attempt retry. It never blocks Notify's
// caller and never returns an error — delivery failures are logged and
// counted.
type Dispatcher struct {
	destinations []Destination
	events       map[string]struct{}
	client       *http.Client
	logger       *zap.Logger
	metrics      DeliveryRecorder
}

// DeliveryRecorder is the subset of internal/metrics the dispatcher needs;
// kept as an interface here so this package has no import on metrics.
type DeliveryRecorder interface {
	RecordWebhookDelivery(destination, status string)
}

type noopRecorder struct{}

func (noopRecorder) RecordWebhookDelivery(string, string) {}

func NewDispatcher(cfg config.AlertingConfig, logger *zap.Logger, metrics DeliveryRecorder) *Dispatcher {
	if metrics == nil {
		metrics = noopRecorder{}
	}
	dests := make([]Destination, len(cfg.Destinations))
	for i, d := range cfg.Destinations {
		dests[i] = Destination{Type: d.Type, cfg: d}
	}
	events := make(map[string]struct{}, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e] = struct{}{}
	}
	return &Dispatcher{
		destinations: dests,
		events:       events,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		metrics:      metrics,
	}
}

// Notify fires alert at every configured destination in its own goroutine.
// Called from request-serving and background paths alike; must never
// block or panic the caller.
func (d *Dispatcher) Notify(alert Alert) {
	if len(d.destinations) == 0 || !d.shouldSend(alert.EventType) {
		return
	}
	for _, dest := range d.destinations {
		dest := dest
		go d.dispatch(dest, alert)
	}
}

func (d *Dispatcher) shouldSend(eventType AlertEventType) bool {
	if len(d.events) == 0 {
		return true
	}
	_, ok := d.events[string(eventType)]
	return ok
}

func (d *Dispatcher) dispatch(dest Destination, alert Alert) {
	err := d.sendWithRetry(dest, alert)
	status := "success"
	if err != nil {
		status = "error"
		d.logger.Warn("alert delivery failed",
			zap.String("destination", dest.Type), zap.Error(err))
	}
	d.metrics.RecordWebhookDelivery(dest.Type, status)
}

func (d *Dispatcher) sendWithRetry(dest Destination, alert Alert) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(b, 2) // 3 total attempts: 1s, 2s between them

	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return d.sendOnce(ctx, dest, alert)
	}, policy)
}

func (d *Dispatcher) sendOnce(ctx context.Context, dest Destination, alert Alert) error {
	cfg := dest.cfg
	switch dest.Type {
	case "slack":
		return sendSlack(ctx, d.client, cfg.WebhookURL, cfg.Channel, alert)
	case "discord":
		return sendDiscord(ctx, d.client, cfg.WebhookURL, alert)
	case "teams":
		return sendTeams(ctx, d.client, cfg.WebhookURL, alert)
	case "telegram":
		return sendTelegram(ctx, d.client, cfg.BotToken, cfg.ChatID, alert)
	case "pagerduty":
		eventsURL := cfg.EventsURL
		if eventsURL == "" {
			eventsURL = "https://events.pagerduty.com/v2/enqueue"
		}
		return sendPagerDuty(ctx, d.client, eventsURL, cfg.RoutingKey, alert)
	case "opsgenie":
		region := cfg.Region
		if region == "" {
			region = "us"
		}
		return sendOpsgenie(ctx, d.client, cfg.APIKey, region, alert)
	case "generic":
		return sendGeneric(ctx, d.client, cfg.URL, cfg.Secret, cfg.Headers, alert)
	default:
		return fmt.Errorf("webhook: unknown destination type %q", dest.Type)
	}
}
