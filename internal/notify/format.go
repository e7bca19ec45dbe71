package notify

import (
	"fmt"
	"strings"

	"ride_bot/internal/model"
)

func roleLabel(r model.Role) string {
	if r == model.RoleDriver {
		return "🚗 Водитель"
	}
	return "🚶 Пассажир"
}

// FormatChannelPost formats a listing for publication in the channel.
func FormatChannelPost(l *model.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", roleLabel(l.Role))
	fmt.Fprintf(&b, "📍 Откуда: %s\n", l.FromPlace)
	fmt.Fprintf(&b, "📍 Куда: %s\n", l.ToPlace)
	if l.DepartureTime != "" {
		fmt.Fprintf(&b, "⏰ Время: %s\n", l.DepartureTime)
	}
	if l.Role == model.RoleDriver && l.Seats > 0 {
		fmt.Fprintf(&b, "🪑 Мест: %d\n", l.Seats)
	}
	fmt.Fprintf(&b, "💰 Цена: %d сом", l.Price)
	return b.String()
}

// FormatTakenPost is the replacement channel text for a taken listing.
func FormatTakenPost(l *model.Listing) string {
	return fmt.Sprintf("✅ Попутчик найден\n\n%s → %s", l.FromPlace, l.ToPlace)
}

// FormatExpiredPost is the replacement channel text for an expired listing,
// shown during the grace period before the message is purged.
func FormatExpiredPost(l *model.Listing) string {
	return fmt.Sprintf("⏰ Истекло\n\n%s", FormatChannelPost(l))
}

// FormatMatchNotification formats the private message sent to a matched
// recipient about a listing.
func FormatMatchNotification(l *model.Listing, author *model.User) string {
	var b strings.Builder
	b.WriteString("🔔 Найден попутчик!\n\n")
	fmt.Fprintf(&b, "%s едет по вашему маршруту:\n\n", roleLabel(l.Role))
	fmt.Fprintf(&b, "📍 Откуда: %s\n", l.FromPlace)
	fmt.Fprintf(&b, "📍 Куда: %s\n", l.ToPlace)
	if l.DepartureTime != "" {
		fmt.Fprintf(&b, "⏰ Время: %s\n", l.DepartureTime)
	}
	if l.Role == model.RoleDriver && l.Seats > 0 {
		fmt.Fprintf(&b, "🪑 Мест: %d\n", l.Seats)
	}
	fmt.Fprintf(&b, "💰 Цена: %d сом\n", l.Price)
	fmt.Fprintf(&b, "⭐ Рейтинг: %.1f", author.Rating)
	return b.String()
}

// FormatExpiryNotice formats the message telling an author their listing
// ran out.
func FormatExpiryNotice(l *model.Listing) string {
	return fmt.Sprintf("⏰ Ваше объявление истекло\n\n📍 %s → %s\n\nСоздать новое: /post", l.FromPlace, l.ToPlace)
}

// FormatRatingPrompt formats the deferred rating request.
func FormatRatingPrompt(ratee *model.User, l *model.Listing) string {
	name := ratee.Username
	if name == "" {
		name = "попутчиком"
	}
	return fmt.Sprintf("⭐ Оцените поездку\n\nКак прошла поездка с %s?\n📍 Маршрут: %s → %s", name, l.FromPlace, l.ToPlace)
}

// ChannelKeyboard is the inline keyboard attached to a channel post. The
// button deep-links into a private chat with the bot, carrying the listing
// ID as the start payload, so channel readers can request the author's
// contact without ever messaging the channel.
func ChannelKeyboard(botName string, listingID int64) [][]Button {
	return [][]Button{{
		{Label: "📞 Связаться", URL: fmt.Sprintf("https://t.me/%s?start=post_%d", botName, listingID)},
	}}
}

// ContactKeyboard is the inline keyboard attached to a match notification.
func ContactKeyboard(listingID, authorID int64) [][]Button {
	return [][]Button{{
		{Label: "📞 Связаться", Data: fmt.Sprintf("contact:%d:%d", listingID, authorID)},
	}}
}

// RatingKeyboard is the 1-5 star keyboard attached to a rating prompt.
func RatingKeyboard(listingID, rateeID int64) [][]Button {
	row := make([]Button, 0, 5)
	for stars := 1; stars <= 5; stars++ {
		row = append(row, Button{
			Label: fmt.Sprintf("⭐ %d", stars),
			Data:  fmt.Sprintf("rate:%d:%d:%d", listingID, rateeID, stars),
		})
	}
	return [][]Button{
		row,
		{{Label: "⏭ Пропустить", Data: fmt.Sprintf("rate:%d:%d:skip", listingID, rateeID)}},
	}
}
