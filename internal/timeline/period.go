package timeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// cron's descriptor parser; only "@every" yields a constant period.
var descriptorParser = cron.NewParser(cron.Descriptor)

// ParsePeriod parses a timeline period.
//
// Supported forms:
//   - Go duration: "300ms", "1s", "2h30m"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Descriptor: "@every 5s" (cron truncates to whole seconds, minimum 1s)
//
// Optional prefixes "interval:" and "every:" are accepted. Calendar schedules
// such as "*/5 * * * *" or "@hourly" are rejected: they do not describe a
// fixed period.
func ParsePeriod(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("period required")
	}
	low := strings.ToLower(s)
	for _, p := range []string{"interval:", "every:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			low = strings.ToLower(s)
			break
		}
	}

	if strings.HasPrefix(s, "@") {
		sched, err := descriptorParser.Parse(s)
		if err != nil {
			return 0, fmt.Errorf("invalid period %q: %w", raw, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("invalid period %q: calendar schedules have no fixed period (use @every)", raw)
		}
		return every.Delay, nil
	}
	if strings.ContainsAny(s, " \t") {
		return 0, fmt.Errorf("invalid period %q: cron expressions have no fixed period", raw)
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", raw)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("period must be > 0")
		}
		return d, nil
	}

	d, err := time.ParseDuration(low)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q (use a duration like '300ms', HH:MM like '02:30', or '@every 5s')", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("period must be > 0")
	}
	return d, nil
}

// TicksPerFire returns how many base ticks separate two fires of period.
func TicksPerFire(period, baseTick time.Duration) int64 {
	if period <= 0 || baseTick <= 0 {
		return 0
	}
	n := int64(period / baseTick)
	if period%baseTick != 0 {
		n++
	}
	return n
}
