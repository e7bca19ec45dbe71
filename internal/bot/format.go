package bot

import (
	"fmt"
	"strings"

	"ride_bot/internal/model"
)

func statusLabel(s model.ListingStatus) string {
	switch s {
	case model.StatusActive:
		return "🟢 активно"
	case model.StatusPaused:
		return "⏸ скрыто"
	case model.StatusExpired:
		return "⏰ истекло"
	case model.StatusTaken:
		return "✅ закрыто"
	default:
		return string(s)
	}
}

// FormatOwnListings renders the /my reply.
func FormatOwnListings(listings []model.Listing) string {
	if len(listings) == 0 {
		return "У вас нет объявлений. Создать: /post <откуда> | <куда> | <цена>"
	}

	var b strings.Builder
	b.WriteString("Ваши объявления:\n")
	for i := range listings {
		l := &listings[i]
		fmt.Fprintf(&b, "\n#%d %s\n%s → %s, %d сом", l.ID, statusLabel(l.Status), l.FromPlace, l.ToPlace, l.Price)
		if l.Status == model.StatusActive {
			fmt.Fprintf(&b, "\nдо %s", l.ExpiresAt.Local().Format("15:04"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nУправление: /pause /resume /extend /delete /take <id>")
	return b.String()
}

// FormatSubscriptionList renders the /subs reply.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "У вас нет подписок. Создать: /subscribe <откуда> | <куда>"
	}

	var b strings.Builder
	b.WriteString("Ваши подписки:\n")
	for i := range subs {
		s := &subs[i]
		fmt.Fprintf(&b, "\nS%d: %s → %s", s.ID, s.FromText, s.ToText)
	}
	b.WriteString("\n\nУдалить: /unsubscribe <id>")
	return b.String()
}

// FormatContactReveal renders the reply to a contact button press.
func FormatContactReveal(author *model.User, l *model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📞 Контакт по маршруту %s → %s\n\n", l.FromPlace, l.ToPlace)
	if author.Username != "" {
		fmt.Fprintf(&b, "Telegram: @%s\n", author.Username)
	}
	if author.Phone != "" {
		fmt.Fprintf(&b, "Телефон: %s\n", author.Phone)
	}
	b.WriteString("\nПосле поездки мы попросим вас оценить друг друга.")
	return b.String()
}
