package carrier

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var deliveryDaysPattern = regexp.MustCompile(`(\d+)\s*-?\s*(\d+)?`)

// ParseDeliveryDays returns the midpoint of a free-text delivery window such
// as "3-5 days" (4) or "2 days" (2). ok is false when s holds no number.
func ParseDeliveryDays(s string) (days float64, ok bool) {
	m := deliveryDaysPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	lo, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	hi := lo
	if m[2] != "" {
		if v, err := strconv.Atoi(m[2]); err == nil {
			hi = v
		}
	}
	return float64(lo+hi) / 2, true
}

// ist is the zone Indian couriers report local timestamps in.
var ist = time.FixedZone("IST", 5*60*60+30*60)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats couriers use in scan data.
// Values without a zone are read as IST.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, ist); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ScanTime returns the time of the index-th scan in a tracking response.
// A scan whose timestamp cannot be parsed gets base moved back by index
// milliseconds, so unparsable scans stay distinct and keep vendor order.
func ScanTime(raw string, base time.Time, index int) time.Time {
	if t, ok := ParseTimestamp(raw); ok {
		return t
	}
	return base.Add(-time.Duration(index) * time.Millisecond)
}
