package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/chorewheel/internal/model"
	"github.com/dukerupert/chorewheel/internal/notify"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// ErrNoSubscriptions is returned when a member has no registered device.
var ErrNoSubscriptions = errors.New("no push subscriptions")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// SubscriptionStore is the subset of store.PushStore the sender uses.
type SubscriptionStore interface {
	ListByMember(ctx context.Context, memberID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Service handles sending web push notifications.
type Service struct {
	publicKey  string
	privateKey string
	subscriber string
	subs       SubscriptionStore
	logger     *slog.Logger
}

// NewService creates a push service with VAPID keys. subscriber is the
// contact (mailto: or https URL) sent to push services.
func NewService(publicKey, privateKey, subscriber string, subs SubscriptionStore, logger *slog.Logger) *Service {
	if subscriber == "" {
		subscriber = "mailto:noreply@chorewheel.app"
	}
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		subs:       subs,
		logger:     logger,
	}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

func (s *Service) Configured() bool {
	return s.publicKey != "" && s.privateKey != ""
}

// Send pushes msg to every device of the recipient. Expired subscriptions
// are removed. It fails only when no device accepted the message.
func (s *Service) Send(ctx context.Context, to model.Recipient, msg notify.Message) error {
	subs, err := s.subs.ListByMember(ctx, to.MemberID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	payload := Payload{Title: msg.Subject, Body: msg.Body, URL: "/", Tag: msg.Tag}

	var lastErr error
	delivered := 0
	for i := range subs {
		err := s.SendTo(ctx, &subs[i], payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrExpired):
			s.logger.Info("removing expired push subscription", "member_id", to.MemberID, "subscription_id", subs[i].ID)
			if err := s.subs.DeleteByEndpoint(ctx, subs[i].Endpoint); err != nil {
				s.logger.Error("delete expired subscription", "error", err)
			}
			lastErr = err
		default:
			lastErr = err
		}
	}
	if delivered == 0 {
		return lastErr
	}
	return nil
}

// SendTo sends a push notification to a single subscription.
func (s *Service) SendTo(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      s.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
