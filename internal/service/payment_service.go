package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGContentBot/internal/models"
)

const (
	currencyStars   = "XTR"
	providerStars   = "telegram_stars"
	payloadKindSubs = "subscription"

	paymentPending = "pending"
	paymentPaid    = "paid"
)

// BotAPI is the part of *tgbotapi.BotAPI the payment flow needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type PaymentService struct {
	priceStars int
	days       int
	payments   PaymentStore
	ledger     *UsageLedger
	log        *slog.Logger
}

type invoicePayload struct {
	Kind string `json:"kind"`
	Days int    `json:"days"`
}

func NewPaymentService(priceStars, days int, payments PaymentStore, ledger *UsageLedger, log *slog.Logger) *PaymentService {
	return &PaymentService{priceStars: priceStars, days: days, payments: payments, ledger: ledger, log: log}
}

// Invoice builds a Telegram Stars invoice for one subscription period.
func (s *PaymentService) Invoice(chatID int64) tgbotapi.InvoiceConfig {
	payload, _ := json.Marshal(invoicePayload{Kind: payloadKindSubs, Days: s.days})
	prices := []tgbotapi.LabeledPrice{
		{Label: fmt.Sprintf("Подписка на %d дней", s.days), Amount: s.priceStars},
	}
	invoice := tgbotapi.NewInvoice(chatID,
		"Подписка без лимитов",
		fmt.Sprintf("Безлимитные анализы каналов, контент-планы и посты на %d дней.", s.days),
		string(payload),
		"", // Stars invoices carry no provider token
		"subscription",
		currencyStars,
		prices,
	)
	invoice.SuggestedTipAmounts = []int{}
	return invoice
}

func (s *PaymentService) SendInvoice(ctx context.Context, bot BotAPI, chatID int64) error {
	if _, err := bot.Send(s.Invoice(chatID)); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	s.log.Info("invoice sent", "chat_id", chatID, "amount", s.priceStars)
	return nil
}

// HandlePreCheckout approves only invoices this service issued.
func (s *PaymentService) HandlePreCheckout(bot BotAPI, query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: query.ID, OK: true}
	if err := s.validate(query.Currency, query.TotalAmount, query.InvoicePayload); err != nil {
		s.log.Warn("pre-checkout rejected", "query_id", query.ID, "err", err)
		response.OK = false
		response.ErrorMessage = "Счёт устарел, запросите новый командой /subscribe."
	}
	if _, err := bot.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// HandleSuccessfulPayment records the charge as pending, opens a subscription
// and then marks the charge paid. Redelivery of a charge that already has a
// subscription returns it; a charge left without one is completed.
func (s *PaymentService) HandleSuccessfulPayment(ctx context.Context, telegramID int64, payment *tgbotapi.SuccessfulPayment) (*models.Subscription, error) {
	if err := s.validate(payment.Currency, payment.TotalAmount, payment.InvoicePayload); err != nil {
		return nil, err
	}
	chargeID := payment.TelegramPaymentChargeID
	record, err := s.payments.FindByProviderCharge(ctx, providerStars, chargeID)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}

	if record != nil {
		sub, err := s.ledger.SubscriptionForPayment(ctx, chargeID)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			s.log.Info("payment already processed", "charge_id", chargeID)
			s.markPaid(ctx, record)
			return sub, nil
		}
		s.log.Warn("payment recorded without subscription, completing", "charge_id", chargeID, "payment_id", record.ID)
	} else {
		raw, _ := json.Marshal(payment)
		record = &models.Payment{
			UserID:         telegramID,
			Provider:       providerStars,
			ProviderCharge: chargeID,
			Currency:       payment.Currency,
			Amount:         payment.TotalAmount,
			Status:         paymentPending,
			RawPayload:     string(raw),
		}
		if err := s.payments.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("record payment: %w", err)
		}
	}

	days := s.days
	var payload invoicePayload
	if err := json.Unmarshal([]byte(payment.InvoicePayload), &payload); err == nil && payload.Days > 0 {
		days = payload.Days
	}
	sub, err := s.ledger.CreateSubscription(ctx, telegramID, days, chargeID)
	if err != nil {
		return nil, err
	}
	s.markPaid(ctx, record)
	return sub, nil
}

// markPaid is best effort: the subscription row already links the charge,
// so a pending status only affects reporting.
func (s *PaymentService) markPaid(ctx context.Context, record *models.Payment) {
	if record.Status == paymentPaid {
		return
	}
	if err := s.payments.UpdateStatus(ctx, record.ID, paymentPaid); err != nil {
		s.log.Error("mark payment paid failed", "payment_id", record.ID, "err", err)
		return
	}
	record.Status = paymentPaid
}

func (s *PaymentService) validate(currency string, amount int, rawPayload string) error {
	if currency != currencyStars {
		return fmt.Errorf("%w: unexpected currency %q", ErrInvalidInput, currency)
	}
	if amount != s.priceStars {
		return fmt.Errorf("%w: unexpected amount %d", ErrInvalidInput, amount)
	}
	var payload invoicePayload
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil || payload.Kind != payloadKindSubs {
		return fmt.Errorf("%w: unknown invoice payload", ErrInvalidInput)
	}
	return nil
}
