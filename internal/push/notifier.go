// Package push delivers Web Push notifications to a participant's registered
// browsers when a message arrives while they are away from the conversation.
package push

import (
	"context"
	"encoding/json"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/motorchat/internal/logger"
	"github.com/motorchat/internal/repository"
)

// Notifier sends notifications over Web Push (VAPID). With empty keys every
// method is a no-op.
type Notifier struct {
	subs  *repository.SubscriptionRepository
	vapid *webpush.Options
}

// NewNotifier builds a notifier. Empty keys disable delivery; subscriptions
// are still stored so enabling keys later needs no re-registration.
func NewNotifier(subs *repository.SubscriptionRepository, subscriber, publicKey, privateKey string) *Notifier {
	n := &Notifier{subs: subs}
	if publicKey != "" && privateKey != "" {
		n.vapid = &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		}
	}
	return n
}

// Enabled reports whether VAPID keys are configured.
func (n *Notifier) Enabled() bool { return n.vapid != nil }

type notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify sends the payload to every subscription of the user. Gone endpoints
// (404/410) are pruned. Errors are logged, never returned: push delivery is
// best effort.
func (n *Notifier) Notify(ctx context.Context, userID int64, title, body string, data map[string]string) {
	if n.vapid == nil {
		return
	}
	subs, err := n.subs.ListForUser(ctx, userID)
	if err != nil {
		logger.Errorf("push list subscriptions user=%d: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	payload, err := json.Marshal(notification{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push marshal payload: %v", err)
		return
	}
	for _, s := range subs {
		sub := &webpush.Subscription{Endpoint: s.Endpoint}
		sub.Keys.P256dh = s.P256dh
		sub.Keys.Auth = s.Auth
		resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, n.vapid)
		if err != nil {
			logger.Errorf("push send user=%d: %v", userID, err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := n.subs.DeleteByEndpoint(ctx, s.Endpoint); err != nil {
				logger.Errorf("push prune endpoint: %v", err)
			}
		}
		resp.Body.Close()
	}
}
