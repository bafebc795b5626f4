package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/TGContentBot/internal/models"
)

// UsageLedger tracks free-tier counters and subscriptions per Telegram user.
// Store failures never reach callers: reads degrade to zeroed counters.
type UsageLedger struct {
	usage    UsageStore
	subs     SubscriptionStore
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// Permission is the outcome of a limit check.
type Permission struct {
	Allowed    bool
	Subscribed bool
	ResetAt    time.Time
}

func NewUsageLedger(usage UsageStore, subs SubscriptionStore, notifier Notifier, log *slog.Logger) *UsageLedger {
	return &UsageLedger{usage: usage, subs: subs, notifier: notifier, log: log, now: time.Now}
}

// GetOrResetUsage returns the user's counters, creating the record on first
// use and zeroing it once the reset time has passed.
func (l *UsageLedger) GetOrResetUsage(ctx context.Context, userID int64) models.UsageRecord {
	rec, _ := l.getOrReset(ctx, userID)
	return rec
}

// getOrReset reports ok=false when the record is a stand-in for a store error.
func (l *UsageLedger) getOrReset(ctx context.Context, userID int64) (models.UsageRecord, bool) {
	now := l.now().UTC()
	rec, err := l.usage.Get(ctx, userID)
	if err != nil {
		l.log.Error("usage read failed", "user_id", userID, "err", err)
		return models.UsageRecord{UserID: userID, ResetAt: now.Add(time.Hour), UpdatedAt: now}, false
	}

	switch {
	case rec == nil:
		rec = &models.UsageRecord{UserID: userID, ResetAt: now.Add(models.UsageResetPeriod), UpdatedAt: now}
	case !now.Before(rec.ResetAt):
		rec.AnalysisCount, rec.PostGenerationCount, rec.IdeasGenerationCount = 0, 0, 0
		rec.ResetAt = now.Add(models.UsageResetPeriod)
		rec.UpdatedAt = now
	default:
		return *rec, true
	}

	if err := l.usage.Save(ctx, *rec); err != nil {
		l.log.Error("usage reset write failed", "user_id", userID, "err", err)
	}
	return *rec, true
}

// CanPerform allows subscribers unconditionally and everybody else while the
// counter for kind is under its free limit.
func (l *UsageLedger) CanPerform(ctx context.Context, userID int64, kind models.UsageKind) Permission {
	if l.HasActiveSubscription(ctx, userID) {
		return Permission{Allowed: true, Subscribed: true}
	}
	usage := l.GetOrResetUsage(ctx, userID)
	return Permission{
		Allowed: usage.Count(kind) < kind.Limit(),
		ResetAt: usage.ResetAt,
	}
}

// Increment is a plain read-then-write; concurrent requests may lose an update.
func (l *UsageLedger) Increment(ctx context.Context, userID int64, kind models.UsageKind) {
	rec, ok := l.getOrReset(ctx, userID)
	if !ok {
		return
	}
	switch kind {
	case models.UsageAnalysis:
		rec.AnalysisCount++
	case models.UsagePost:
		rec.PostGenerationCount++
	case models.UsageIdeas:
		rec.IdeasGenerationCount++
	default:
		return
	}
	rec.UpdatedAt = l.now().UTC()
	if err := l.usage.Save(ctx, rec); err != nil {
		l.log.Error("usage increment failed", "user_id", userID, "kind", kind, "err", err)
	}
}

// ActiveSubscription returns the current subscription or nil. An expired row
// still flagged active is switched off here and the user is notified.
func (l *UsageLedger) ActiveSubscription(ctx context.Context, userID int64) *models.Subscription {
	sub, err := l.subs.Latest(ctx, userID)
	if err != nil {
		l.log.Error("subscription read failed", "user_id", userID, "err", err)
		return nil
	}
	if sub == nil || !sub.IsActive {
		return nil
	}
	now := l.now()
	if sub.ActiveAt(now) {
		return sub
	}

	if err := l.subs.Deactivate(ctx, sub.ID); err != nil {
		l.log.Error("subscription deactivate failed", "user_id", userID, "subscription_id", sub.ID, "err", err)
		return nil
	}
	l.log.Info("subscription expired", "user_id", userID, "subscription_id", sub.ID, "end_date", sub.EndDate)
	if l.notifier != nil {
		text := "Ваша подписка закончилась. Бесплатные лимиты снова действуют, продлить подписку можно командой /subscribe."
		if err := l.notifier.Notify(ctx, userID, text); err != nil {
			l.log.Warn("expiry notification failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

func (l *UsageLedger) HasActiveSubscription(ctx context.Context, userID int64) bool {
	return l.ActiveSubscription(ctx, userID) != nil
}

// CreateSubscription deactivates every previous row for the user and opens
// a new one. Remaining paid days of a live subscription carry over.
func (l *UsageLedger) CreateSubscription(ctx context.Context, userID int64, days int, paymentID string) (*models.Subscription, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: subscription days must be positive", ErrInvalidInput)
	}
	now := l.now().UTC()
	start := now
	// Read the row directly: an expired subscription is replaced below, so the
	// user is not told it ended while paying for the next one.
	current, err := l.subs.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read current subscription: %w", err)
	}
	if current != nil && current.ActiveAt(now) {
		start = current.EndDate.UTC()
	}

	if err := l.subs.DeactivateAll(ctx, userID); err != nil {
		return nil, fmt.Errorf("deactivate previous subscriptions: %w", err)
	}
	sub := &models.Subscription{
		UserID:    userID,
		StartDate: now,
		EndDate:   start.Add(time.Duration(days) * 24 * time.Hour),
		IsActive:  true,
		PaymentID: paymentID,
	}
	if err := l.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	l.log.Info("subscription created", "user_id", userID, "end_date", sub.EndDate, "payment_id", paymentID)
	return sub, nil
}

// SubscriptionForPayment returns the subscription opened by paymentID, or nil.
func (l *UsageLedger) SubscriptionForPayment(ctx context.Context, paymentID string) (*models.Subscription, error) {
	sub, err := l.subs.FindByPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("find subscription by payment: %w", err)
	}
	return sub, nil
}

// Status is the caller-facing view of limits and subscription.
type Status struct {
	Usage        models.UsageRecord       `json:"usage"`
	Limits       map[string]int           `json:"limits"`
	Subscribed   bool                     `json:"subscribed"`
	Subscription *models.Subscription     `json:"subscription,omitempty"`
	Remaining    map[models.UsageKind]int `json:"remaining"`
}

func (l *UsageLedger) Status(ctx context.Context, userID int64) Status {
	sub := l.ActiveSubscription(ctx, userID)
	usage := l.GetOrResetUsage(ctx, userID)
	st := Status{
		Usage: usage,
		Limits: map[string]int{
			string(models.UsageAnalysis): models.FreeAnalysisLimit,
			string(models.UsagePost):     models.FreePostLimit,
			string(models.UsageIdeas):    models.FreeIdeasLimit,
		},
		Subscribed:   sub != nil,
		Subscription: sub,
		Remaining:    map[models.UsageKind]int{},
	}
	for _, kind := range []models.UsageKind{models.UsageAnalysis, models.UsagePost, models.UsageIdeas} {
		st.Remaining[kind] = max(kind.Limit()-usage.Count(kind), 0)
	}
	return st
}
