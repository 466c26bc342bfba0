package telegram

import (
	"context"
	"fmt"
	"html"
	"sync"

	"go.uber.org/zap"

	"eventpay/internal/models"
	"eventpay/internal/presenter"
)

// Notifier reports settled payments to an admin chat.
type Notifier struct {
	api    *BotAPI
	chatID string
	logger *zap.Logger

	wg sync.WaitGroup
}

func NewNotifier(api *BotAPI, chatID string, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, logger: logger}
}

// PaymentSettled queues a short report about a payment that reached a terminal
// state and returns without waiting for delivery. The send outlives ctx's
// cancellation. Delivery failures are logged and otherwise ignored.
func (n *Notifier) PaymentSettled(ctx context.Context, p *models.Payment) {
	if n == nil || n.api == nil || n.chatID == "" {
		return
	}

	badge := presenter.Badge(string(p.Status))
	text := fmt.Sprintf(
		"<b>%s %s</b>\nPayment: #%d\nBooking: #%d\nAmount: %s\nCustomer: %s\nRef: %s",
		badge.Emoji, badge.Label, p.ID, p.BookingID,
		presenter.FormatAmount(p.Amount),
		html.EscapeString(p.CustomerName),
		html.EscapeString(p.PidxValue()),
	)
	if p.FailureReason != "" {
		text += "\nReason: " + html.EscapeString(p.FailureReason)
	}

	paymentID := p.ID
	sendCtx := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.api.SendMessage(sendCtx, n.chatID, text); err != nil {
			n.logger.Warn("Failed to send payment notification", zap.Uint("payment_id", paymentID), zap.Error(err))
		}
	}()
}

// Wait blocks until every queued notification has been sent or has failed.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
