// Package notify fans lottery notifications out to chat channels (Telegram,
// Discord). Notifications can be filtered by event type so operators receive
// only the alerts they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards event types in the allowed set; NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders. An empty events list allows
// every event type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends to all senders if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// NotifyEvent renders a lottery event and sends it through Notify.
func (n *Notifier) NotifyEvent(ctx context.Context, evt domain.Event) error {
	title, message := Render(evt)
	return n.Notify(ctx, string(evt.Type), title, message)
}

// Render formats evt as a title and a message body.
func Render(evt domain.Event) (title, message string) {
	switch evt.Type {
	case domain.EventEntryRecorded:
		title = fmt.Sprintf("Round %d: new entry", evt.Round)
		message = fmt.Sprintf("%s entered with %s ETH (%d entries)",
			hexOrUnknown(evt.Participant), domain.FormatEther(evt.Amount), evt.Players)
	case domain.EventRequestedRandomness:
		title = fmt.Sprintf("Round %d: drawing", evt.Round)
		message = fmt.Sprintf("Randomness request %v sent; %d entries, pot %s ETH",
			evt.RequestID, evt.Players, domain.FormatEther(evt.Amount))
	case domain.EventWinnerPicked:
		title = fmt.Sprintf("Round %d: winner picked", evt.Round)
		message = fmt.Sprintf("%s won %s ETH out of %d entries",
			hexOrUnknown(evt.Winner), domain.FormatEther(evt.Prize), evt.Players)
	default:
		title = string(evt.Type)
		message = fmt.Sprintf("round %d", evt.Round)
	}
	return title, message
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func hexOrUnknown(a *common.Address) string {
	if a == nil {
		return "unknown"
	}
	return a.Hex()
}
