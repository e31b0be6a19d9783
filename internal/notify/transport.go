package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/dukerupert/chorewheel/internal/model"
)

var (
	// ErrTransport wraps every failure reported by a channel sender.
	ErrTransport = errors.New("transport failure")
	// ErrChannelNotConfigured is reported for channels without a sender.
	ErrChannelNotConfigured = errors.New("channel not configured")
)

// ChannelSender delivers a rendered message over one channel.
type ChannelSender interface {
	Send(ctx context.Context, to model.Recipient, msg Message) error
}

// Transport attempts delivery of an intent and reports what happened. It
// never returns an error; failures live in the result.
type Transport interface {
	Send(ctx context.Context, intent model.NotificationIntent) model.DeliveryResult
}

// MultiTransport routes each recipient and channel pair to the registered
// sender, pacing every channel with its own limiter.
type MultiTransport struct {
	mu       sync.RWMutex
	senders  map[model.Channel]ChannelSender
	limiters map[model.Channel]*rate.Limiter
	rps      float64
	logger   *slog.Logger
}

// NewMultiTransport creates a transport. ratePerSec <= 0 disables pacing.
func NewMultiTransport(ratePerSec float64, logger *slog.Logger) *MultiTransport {
	return &MultiTransport{
		senders:  map[model.Channel]ChannelSender{},
		limiters: map[model.Channel]*rate.Limiter{},
		rps:      ratePerSec,
		logger:   logger,
	}
}

// Register installs the sender for a channel, replacing any previous one.
func (t *MultiTransport) Register(ch model.Channel, sender ChannelSender) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.senders[ch] = sender
	if t.rps > 0 {
		burst := max(1, int(t.rps))
		t.limiters[ch] = rate.NewLimiter(rate.Limit(t.rps), burst)
	}
}

func (t *MultiTransport) Send(ctx context.Context, intent model.NotificationIntent) model.DeliveryResult {
	res := model.DeliveryResult{Intent: intent}
	for _, r := range intent.Recipients {
		if len(r.Channels) == 0 {
			continue
		}
		msg := Render(intent, r)
		for _, ch := range r.Channels {
			res.Attempts = append(res.Attempts, model.DeliveryAttempt{
				MemberID: r.MemberID,
				Channel:  ch,
				Err:      t.sendOne(ctx, ch, r, msg),
			})
		}
	}
	return res
}

func (t *MultiTransport) sendOne(ctx context.Context, ch model.Channel, r model.Recipient, msg Message) error {
	t.mu.RLock()
	sender := t.senders[ch]
	limiter := t.limiters[ch]
	t.mu.RUnlock()

	if sender == nil {
		return fmt.Errorf("%w: %s", ErrChannelNotConfigured, ch)
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTransport, ch, err)
		}
	}
	if err := sender.Send(ctx, r, msg); err != nil {
		t.logger.Warn("delivery failed", "channel", ch, "member_id", r.MemberID, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrTransport, ch, err)
	}
	return nil
}
