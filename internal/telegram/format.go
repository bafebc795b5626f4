package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/digkill/TGContentBot/internal/models"
	"github.com/digkill/TGContentBot/internal/service"
)

var mskZone = time.FixedZone("MSK", 3*60*60)

func formatMSK(t time.Time) string {
	return t.In(mskZone).Format("02.01.2006 15:04")
}

func formatAnalysis(res *service.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Анализ канала @%s\nПроанализировано постов: %d\n\n", res.ChannelName, res.AnalyzedPostsCount)
	b.WriteString("Темы:\n")
	for _, theme := range res.Themes {
		fmt.Fprintf(&b, "• %s\n", theme)
	}
	b.WriteString("\nСтили:\n")
	for _, style := range res.Styles {
		fmt.Fprintf(&b, "• %s\n", style)
	}
	fmt.Fprintf(&b, "\nЛучшее время для публикаций (МСК): %s", res.BestPostingTime)
	if res.Message != "" {
		fmt.Fprintf(&b, "\n\n%s", res.Message)
	}
	b.WriteString("\n\nКонтент-план и посты можно сгенерировать в приложении.")
	return b.String()
}

func formatStatus(st service.Status) string {
	if st.Subscribed && st.Subscription != nil {
		return fmt.Sprintf("Подписка активна до %s (МСК). Ограничений нет.", formatMSK(st.Subscription.EndDate))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Бесплатный тариф. Лимиты обновятся %s (МСК).\n\n", formatMSK(st.Usage.ResetAt))
	lines := []struct {
		label string
		kind  models.UsageKind
	}{
		{label: "Анализы каналов", kind: models.UsageAnalysis},
		{label: "Контент-планы", kind: models.UsageIdeas},
		{label: "Посты", kind: models.UsagePost},
	}
	for _, line := range lines {
		fmt.Fprintf(&b, "%s: осталось %d из %d\n", line.label, st.Remaining[line.kind], line.kind.Limit())
	}
	b.WriteString("\nСнять ограничения: /subscribe")
	return b.String()
}

// formatPaymentResult reports success only when a subscription was opened.
func formatPaymentResult(sub *models.Subscription) string {
	if sub == nil {
		return "Оплата получена, но подписку не удалось активировать. Напишите в поддержку, мы всё исправим."
	}
	return fmt.Sprintf("Оплата успешно получена! Подписка активна до %s (МСК).", formatMSK(sub.EndDate))
}
