package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/pkg/logger"
)

var ledgerEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(usage *memUsage, subs *memSubs, notifier Notifier) (*UsageLedger, func(time.Duration)) {
	l := NewUsageLedger(usage, subs, notifier, logger.Discard())
	now, advance := fixedClock(ledgerEpoch)
	l.now = now
	return l, advance
}

func TestUsageLedger_GetOrResetUsageIsIdempotent(t *testing.T) {
	t.Parallel()

	usage := newMemUsage()
	l, _ := newTestLedger(usage, &memSubs{}, nil)
	ctx := context.Background()

	first := l.GetOrResetUsage(ctx, 42)
	second := l.GetOrResetUsage(ctx, 42)

	assert.Equal(t, first, second)
	assert.Equal(t, ledgerEpoch.Add(models.UsageResetPeriod), first.ResetAt)
	assert.Equal(t, 1, usage.saves, "only the initial record is written")
}

func TestUsageLedger_ResetsAfterWindow(t *testing.T) {
	t.Parallel()

	usage := newMemUsage()
	l, advance := newTestLedger(usage, &memSubs{}, nil)
	ctx := context.Background()

	l.Increment(ctx, 7, models.UsageAnalysis)
	l.Increment(ctx, 7, models.UsagePost)
	require.Equal(t, 1, l.GetOrResetUsage(ctx, 7).AnalysisCount)

	advance(models.UsageResetPeriod)
	rec := l.GetOrResetUsage(ctx, 7)

	assert.Zero(t, rec.AnalysisCount)
	assert.Zero(t, rec.PostGenerationCount)
	assert.Equal(t, ledgerEpoch.Add(2*models.UsageResetPeriod), rec.ResetAt)
}

func TestUsageLedger_CanPerformEnforcesFreeLimits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    models.UsageKind
		used    int
		allowed bool
	}{
		{name: "analysis under limit", kind: models.UsageAnalysis, used: models.FreeAnalysisLimit - 1, allowed: true},
		{name: "analysis at limit", kind: models.UsageAnalysis, used: models.FreeAnalysisLimit, allowed: false},
		{name: "post at limit", kind: models.UsagePost, used: models.FreePostLimit, allowed: false},
		{name: "ideas under limit", kind: models.UsageIdeas, used: 0, allowed: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			usage := newMemUsage()
			l, _ := newTestLedger(usage, &memSubs{}, nil)
			ctx := context.Background()
			for range tc.used {
				l.Increment(ctx, 1, tc.kind)
			}

			perm := l.CanPerform(ctx, 1, tc.kind)
			assert.Equal(t, tc.allowed, perm.Allowed)
			assert.False(t, perm.Subscribed)
			assert.Equal(t, ledgerEpoch.Add(models.UsageResetPeriod), perm.ResetAt)
		})
	}
}

func TestUsageLedger_StoreErrorDegradesWithoutOverwriting(t *testing.T) {
	t.Parallel()

	usage := newMemUsage()
	usage.rows[5] = models.UsageRecord{UserID: 5, AnalysisCount: 3, ResetAt: ledgerEpoch.Add(time.Hour)}
	usage.getErr = errStoreDown
	l, _ := newTestLedger(usage, &memSubs{}, nil)
	ctx := context.Background()

	rec := l.GetOrResetUsage(ctx, 5)
	assert.Zero(t, rec.AnalysisCount)
	assert.Equal(t, ledgerEpoch.Add(time.Hour), rec.ResetAt)

	l.Increment(ctx, 5, models.UsageAnalysis)
	assert.Zero(t, usage.saves)
	assert.Equal(t, 3, usage.rows[5].AnalysisCount)
}

func TestUsageLedger_SubscriberBypassesLimits(t *testing.T) {
	t.Parallel()

	usage := newMemUsage()
	l, _ := newTestLedger(usage, &memSubs{}, nil)
	ctx := context.Background()
	for range models.FreePostLimit {
		l.Increment(ctx, 9, models.UsagePost)
	}
	_, err := l.CreateSubscription(ctx, 9, 30, "charge-1")
	require.NoError(t, err)

	perm := l.CanPerform(ctx, 9, models.UsagePost)
	assert.True(t, perm.Allowed)
	assert.True(t, perm.Subscribed)
}

func TestUsageLedger_CreateSubscriptionKeepsOneActiveRow(t *testing.T) {
	t.Parallel()

	subs := &memSubs{}
	l, advance := newTestLedger(newMemUsage(), subs, nil)
	ctx := context.Background()

	first, err := l.CreateSubscription(ctx, 3, 30, "charge-1")
	require.NoError(t, err)
	advance(10 * 24 * time.Hour)
	second, err := l.CreateSubscription(ctx, 3, 30, "charge-2")
	require.NoError(t, err)

	assert.Equal(t, 1, subs.activeCount(3))
	assert.Equal(t, first.EndDate.Add(30*24*time.Hour), second.EndDate, "remaining days carry over")

	active := l.ActiveSubscription(ctx, 3)
	require.NotNil(t, active)
	assert.Equal(t, "charge-2", active.PaymentID)
}

func TestUsageLedger_CreateSubscriptionRejectsNonPositiveDays(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(newMemUsage(), &memSubs{}, nil)
	_, err := l.CreateSubscription(context.Background(), 1, 0, "x")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUsageLedger_ExpiredSubscriptionIsDeactivatedAndNotified(t *testing.T) {
	t.Parallel()

	subs := &memSubs{}
	notifier := &fakeNotifier{}
	l, advance := newTestLedger(newMemUsage(), subs, notifier)
	ctx := context.Background()

	_, err := l.CreateSubscription(ctx, 11, 30, "charge-1")
	require.NoError(t, err)
	require.True(t, l.HasActiveSubscription(ctx, 11))

	advance(31 * 24 * time.Hour)
	assert.Nil(t, l.ActiveSubscription(ctx, 11))
	assert.Zero(t, subs.activeCount(11))
	assert.Len(t, notifier.sent[11], 1)

	assert.False(t, l.HasActiveSubscription(ctx, 11))
	assert.Len(t, notifier.sent[11], 1, "notification is sent once")
}

func TestUsageLedger_RenewalAfterExpirySendsNoExpiryNotice(t *testing.T) {
	t.Parallel()

	subs := &memSubs{}
	notifier := &fakeNotifier{}
	l, advance := newTestLedger(newMemUsage(), subs, notifier)
	ctx := context.Background()

	_, err := l.CreateSubscription(ctx, 12, 30, "charge-1")
	require.NoError(t, err)
	advance(31 * 24 * time.Hour)

	renewed, err := l.CreateSubscription(ctx, 12, 30, "charge-2")
	require.NoError(t, err)

	assert.Empty(t, notifier.sent[12])
	assert.Equal(t, 1, subs.activeCount(12))
	assert.Equal(t, ledgerEpoch.Add(61*24*time.Hour), renewed.EndDate.In(time.UTC), "expired days do not carry over")
}

func TestUsageLedger_StatusReportsRemaining(t *testing.T) {
	t.Parallel()

	l, _ := newTestLedger(newMemUsage(), &memSubs{}, nil)
	ctx := context.Background()
	l.Increment(ctx, 2, models.UsageAnalysis)
	l.Increment(ctx, 2, models.UsagePost)
	l.Increment(ctx, 2, models.UsagePost)

	st := l.Status(ctx, 2)
	assert.False(t, st.Subscribed)
	assert.Equal(t, models.FreeAnalysisLimit-1, st.Remaining[models.UsageAnalysis])
	assert.Zero(t, st.Remaining[models.UsagePost])
	assert.Equal(t, models.FreeIdeasLimit, st.Remaining[models.UsageIdeas])
}
