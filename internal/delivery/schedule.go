package delivery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultSchedule = "@every 1m"

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// cronSpec normalizes a schedule string into a robfig/cron spec.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "@hourly", "@every 30s"
//   - Interval duration: "30s", "2m"
//   - Interval HH:MM: "00:05" (5 minutes)
func cronSpec(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DefaultSchedule, nil
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return s, nil
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return "", fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return "", fmt.Errorf("interval must be > 0")
		}
		return "@every " + d.String(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return "", fmt.Errorf("invalid schedule %q (use cron like '*/1 * * * *', HH:MM like '00:05', or duration like '30s')", raw)
	}
	if d <= 0 {
		return "", fmt.Errorf("interval must be > 0")
	}
	return "@every " + d.String(), nil
}
