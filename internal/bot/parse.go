package bot

import (
	"errors"
	"strconv"
	"strings"

	"ride_bot/internal/model"
)

var errUsage = errors.New("bad arguments")

// PostArgs is the parsed form of the /post command.
type PostArgs struct {
	From          string
	To            string
	Price         int
	DepartureTime string
	Seats         int
}

// ParseIDArg parses a single positive numeric argument.
func ParseIDArg(args string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id <= 0 {
		return 0, errUsage
	}
	return id, nil
}

// ParseRoleArg parses the /role argument.
func ParseRoleArg(args string) (model.Role, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "driver", "водитель":
		return model.RoleDriver, nil
	case "passenger", "пассажир":
		return model.RolePassenger, nil
	}
	return "", errUsage
}

// ParsePhoneArg validates a phone number: an optional leading plus followed
// by 9 to 15 digits. Spaces and dashes are stripped first.
func ParsePhoneArg(args string) (string, error) {
	phone := strings.TrimSpace(args)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")

	digits := phone
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	if len(digits) < 9 || len(digits) > 15 {
		return "", errUsage
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", errUsage
		}
	}
	return phone, nil
}

// ParsePostArgs parses "/post <from> | <to> | <price> [| <time> [| <seats>]]".
// Route and price semantics are validated later; this only checks shape.
func ParsePostArgs(args string) (PostArgs, error) {
	parts := splitParts(args)
	if len(parts) < 3 || len(parts) > 5 {
		return PostArgs{}, errors.New("Использование: /post <откуда> | <куда> | <цена> [| <время> [| <мест>]]")
	}

	price, err := strconv.Atoi(parts[2])
	if err != nil || price <= 0 {
		return PostArgs{}, errors.New("Цена должна быть положительным числом, например: /post Ош | Центр | 100")
	}

	out := PostArgs{From: parts[0], To: parts[1], Price: price}
	if len(parts) >= 4 {
		out.DepartureTime = parts[3]
	}
	if len(parts) == 5 {
		seats, err := strconv.Atoi(parts[4])
		if err != nil || seats <= 0 {
			return PostArgs{}, errors.New("Число мест должно быть положительным.")
		}
		out.Seats = seats
	}
	return out, nil
}

// ParseRouteArgs parses "/subscribe <from> | <to>".
func ParseRouteArgs(args string) (from, to string, err error) {
	parts := splitParts(args)
	if len(parts) != 2 {
		return "", "", errUsage
	}
	return parts[0], parts[1], nil
}

func splitParts(args string) []string {
	raw := strings.Split(args, "|")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
