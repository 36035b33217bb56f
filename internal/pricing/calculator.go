// Package pricing derives item prices from canonical resource pricing and
// customer-selected extras. Every function here is pure.
package pricing

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/travelhub/booking-service/internal/models"
)

// MaxFreeTextLength caps free-text extras such as special requests
const MaxFreeTextLength = 500

// ErrInvalidTotal is returned when a computed price is not finite and positive
var ErrInvalidTotal = errors.New("computed price must be finite and positive")

type flagRate struct {
	key  string
	rate float64
}

var seatSelectionRates = map[string]float64{
	"standard":      0,
	"extra-legroom": 35,
	"premium":       75,
}

// Flag rates are kept in slices so the surcharge sum is order-stable.
var flagRates = map[models.ResourceType][]flagRate{
	models.ResourceFlight: {
		{"checkedBag", 30},
		{"carryOnBag", 15},
		{"priorityBoarding", 20},
	},
	models.ResourceHotel: {
		{"roomUpgrade", 50},
		{"breakfast", 25},
		{"lateCheckout", 30},
	},
	models.ResourceCar: {
		{"insurance", 25},
		{"gps", 15},
		{"childSeat", 10},
		{"additionalDriver", 12},
	},
}

var freeTextKeys = map[models.ResourceType][]string{
	models.ResourceFlight: {"specialRequests"},
	models.ResourceHotel:  {"specialRequests", "notes"},
	models.ResourceCar:    {"specialRequests", "notes"},
}

// NormalizeExtras filters extras against the allow-list of the resource type
// and returns the cleaned map together with the flat surcharge. Unknown keys
// and values that cannot be coerced are dropped.
func NormalizeExtras(resourceType models.ResourceType, extras map[string]any) (map[string]any, float64) {
	normalized := make(map[string]any)
	surcharge := 0.0

	if resourceType == models.ResourceFlight {
		if raw, ok := extras["seatSelection"]; ok {
			if seat, ok := raw.(string); ok {
				seat = strings.ToLower(strings.TrimSpace(seat))
				if rate, known := seatSelectionRates[seat]; known {
					normalized["seatSelection"] = seat
					surcharge += rate
				}
			}
		}
	}

	for _, fr := range flagRates[resourceType] {
		raw, ok := extras[fr.key]
		if !ok {
			continue
		}
		enabled, ok := coerceBool(raw)
		if !ok {
			continue
		}
		normalized[fr.key] = enabled
		if enabled {
			surcharge += fr.rate
		}
	}

	for _, key := range freeTextKeys[resourceType] {
		raw, ok := extras[key].(string)
		if !ok {
			continue
		}
		text := truncate(strings.TrimSpace(raw), MaxFreeTextLength)
		if text != "" {
			normalized[key] = text
		}
	}

	return normalized, Round(surcharge)
}

// Multiplier returns the quantity multiplier for an item. Flights use the
// requested seat count; hotels and cars bill per started day between the dates.
// Unknown resource types yield 0.
func Multiplier(resourceType models.ResourceType, quantity int, start, end *time.Time) int {
	switch resourceType {
	case models.ResourceFlight:
		if quantity < 1 {
			return 1
		}
		return quantity
	case models.ResourceHotel, models.ResourceCar:
		if start == nil || end == nil {
			return 1
		}
		days := int(math.Ceil(end.Sub(*start).Hours() / 24))
		if days < 1 {
			return 1
		}
		return days
	default:
		return 0
	}
}

// ItemTotal computes the unit price (base plus surcharge) and the line total
func ItemTotal(basePrice, surcharge float64, multiplier int) (float64, float64, error) {
	unit := Round(basePrice + surcharge)
	total := Round(unit * float64(multiplier))
	if !isPositive(unit) || !isPositive(total) {
		return 0, 0, ErrInvalidTotal
	}
	return unit, total, nil
}

// Round rounds an amount to currency minor units, half away from zero
func Round(amount float64) float64 {
	return math.Round(amount*100) / 100
}

func isPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1", "on":
			return true, true
		case "false", "no", "0", "off", "":
			return false, true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f != 0, true
		}
		return false, false
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	default:
		return false, false
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
