package timeutil

import "strconv"

// Micros formats a microsecond count with underscore thousands
// separators, the way the trace reports and graph labels show times.
func Micros(us int64) string {
	s := strconv.FormatInt(us, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var out []byte
	lead := len(s) % 3
	if lead > 0 {
		out = append(out, s[:lead]...)
	}
	for i := lead; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, '_')
		}
		out = append(out, s[i:i+3]...)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

// Seconds converts microseconds to float seconds, the unit the pstats
// format persists.
func Seconds(us int64) float64 {
	return float64(us) / 1e6
}
