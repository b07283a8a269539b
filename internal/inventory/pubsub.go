package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the subscription.
const (
	JobInventoryRun = "inventory_run"
	JobHealthCheck  = "health_check"
)

// ErrAllDatesFailed is returned when a run produced no complete date.
var ErrAllDatesFailed = errors.New("no date of the run completed")

// RunMessage is the payload of an inventory job message. Dates use the
// YYYY-MM-DD format.
type RunMessage struct {
	JobType string `json:"job_type"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

// Range parses the message dates.
func (m RunMessage) Range() (from, to time.Time, err error) {
	from, err = time.Parse(time.DateOnly, m.From)
	if err != nil {
		return from, to, fmt.Errorf("%w: from %q", ErrInvalidRange, m.From)
	}
	to = from
	if m.To != "" {
		to, err = time.Parse(time.DateOnly, m.To)
		if err != nil {
			return from, to, fmt.Errorf("%w: to %q", ErrInvalidRange, m.To)
		}
	}
	return from, to, nil
}

// JobRunner runs inventories for message handlers.
type JobRunner interface {
	Run(ctx context.Context, from, to time.Time) (*Report, error)
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Runner           JobRunner
	Logger           zerolog.Logger
}

// PubSubHandler triggers inventory runs from Pub/Sub messages.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Runs can take long; one at a time with a generous lease.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Hour

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.Runner, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if h.dispatcher.Handle(logger.WithContext(ctx), msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Dispatcher decodes job messages and runs them. It holds no Pub/Sub state.
type Dispatcher struct {
	runner JobRunner
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for runner.
func NewDispatcher(runner JobRunner, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{runner: runner, logger: logger}
}

// Handle processes one message and reports whether it should be acked.
// Malformed and unknown messages are acked to prevent redelivery.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) bool {
	startTime := time.Now()
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &d.logger
	}

	var msg RunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	var err error
	switch msg.JobType {
	case JobInventoryRun:
		err = d.handleInventoryRun(ctx, msg)
	case JobHealthCheck:
		err = d.handleHealthCheck(ctx, msg)
	default:
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	}

	if errors.Is(err, ErrInvalidRange) {
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("rejecting job")
		return true
	}
	if err != nil {
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

func (d *Dispatcher) handleInventoryRun(ctx context.Context, msg RunMessage) error {
	from, to, err := msg.Range()
	if err != nil {
		return err
	}

	report, err := d.runner.Run(ctx, from, to)
	if err != nil {
		return err
	}

	if report.Dates > 0 && report.Completed == 0 {
		return fmt.Errorf("%w: %d failures", ErrAllDatesFailed, len(report.Failures))
	}
	return nil
}

// handleHealthCheck computes a single date; any failure fails the check.
func (d *Dispatcher) handleHealthCheck(ctx context.Context, msg RunMessage) error {
	date := time.Now().UTC().AddDate(0, 0, -1)
	if msg.From != "" {
		from, _, err := msg.Range()
		if err != nil {
			return err
		}
		date = from
	}

	report, err := d.runner.Run(ctx, date, date)
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("health check failed: %d errors", len(report.Failures))
	}
	return nil
}
