package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// KindTransferReceived tells a recipient that funds arrived.
	KindTransferReceived = "transfer_received"
	// KindTransferSent confirms a transfer to its sender.
	KindTransferSent = "transfer_sent"
	// KindFundingResolved tells an owner their funding request was decided.
	KindFundingResolved = "funding_resolved"

	defaultTimeout  = 5 * time.Second
	defaultInFlight = 64
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
	Data        map[string]string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger in place of a push gateway.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Dispatcher sends notifications in the background. Dispatch never blocks the
// caller and never reports delivery failures to it; failures are logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger
	slots    chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher wraps notifier with asynchronous, time-bounded delivery.
func NewDispatcher(notifier Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
		slots:    make(chan struct{}, defaultInFlight),
	}
}

// Dispatch schedules delivery of message. When too many deliveries are in
// flight the message is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, message Message) {
	if d == nil || d.notifier == nil {
		return
	}
	select {
	case d.slots <- struct{}{}:
	default:
		d.logger.Warn("notification dropped", "kind", message.Kind, "destination", message.Destination)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.notifier.Send(sendCtx, message); err != nil {
			d.logger.Error("notification failed", "kind", message.Kind, "destination", message.Destination, "error", err)
		}
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
