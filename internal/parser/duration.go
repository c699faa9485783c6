package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var isoDurationRe = regexp.MustCompile(`^(-)?P(?:([\d.]+)Y)?(?:([\d.]+)M)?(?:([\d.]+)W)?(?:([\d.]+)D)?(?:T(?:([\d.]+)H)?(?:([\d.]+)M)?(?:([\d.]+)S)?)?$`)

// Calendar units are approximated: a year is 365 days, a month 30 days.
var isoUnitSeconds = []float64{
	365 * 86400, // Y
	30 * 86400,  // M
	7 * 86400,   // W
	86400,       // D
	3600,        // H
	60,          // M
	1,           // S
}

// parseISODuration converts an xs:duration such as "PT1H22M3.546S" to
// seconds. ok is false for empty or malformed input.
func parseISODuration(s string) (float64, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "P" || s == "PT" {
		return 0, false
	}
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	var total float64
	for i, unit := range isoUnitSeconds {
		field := m[i+2]
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, false
		}
		total += v * unit
	}
	if m[1] == "-" {
		total = -total
	}
	return total, true
}

// durationSeconds rounds to whole seconds: "PT1H22M3.546S" is 4924.
func durationSeconds(s string) *int {
	total, ok := parseISODuration(s)
	if !ok || total < 0 {
		return nil
	}
	return intPtr(int(math.Round(total)))
}
