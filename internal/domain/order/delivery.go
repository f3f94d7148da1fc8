package order

import (
	"regexp"
	"strconv"
	"time"
)

var deliveryDatePattern = regexp.MustCompile(`^\s*(\d{1,2})/(\d{1,2})`)

// ParseDeliveryDay extracts the day from delivery texts such as "28/06" or
// "18/09 de 13.30hs a 17hs". The year is taken from now.
func ParseDeliveryDay(text string, now time.Time) (time.Time, bool) {
	m := deliveryDatePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	t := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
	if t.Day() != day {
		// Rolled over, e.g. 31/04.
		return time.Time{}, false
	}
	return t, true
}
