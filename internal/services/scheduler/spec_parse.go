package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind classifies a parsed schedule expression.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is the result of parsing a schedule string. Source records the
// textual form the value came from ("cron", "duration" or "hhmm").
type ParsedSpec struct {
	Kind   SpecKind
	Source string
	Cron   string
	Every  time.Duration
}

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts several schedule formats:
//
//	"*/5 * * * *"      cron expression (optional seconds field)
//	"cron:0 0 * * *"   explicitly prefixed cron expression
//	"10m"              Go duration, runs at that interval
//	"interval:45s"     explicitly prefixed duration
//	"01:30"            HH:MM treated as an interval of that length
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("empty schedule")
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		expr := strings.TrimSpace(rest)
		if _, err := specParser.Parse(expr); err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		return ParsedSpec{Kind: SpecCron, Source: "cron", Cron: expr}, nil
	}
	for _, prefix := range []string{"interval:", "every:"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			d, err := time.ParseDuration(strings.TrimSpace(rest))
			if err != nil {
				return ParsedSpec{}, fmt.Errorf("invalid interval %q: %w", rest, err)
			}
			if d <= 0 {
				return ParsedSpec{}, fmt.Errorf("interval must be positive, got %s", d)
			}
			return ParsedSpec{Kind: SpecInterval, Source: "duration", Every: d}, nil
		}
	}

	// Bare HH:MM means "every H hours M minutes". Checked before durations so
	// that "01:30" is not rejected by time.ParseDuration.
	if h, m, err := parseHHMM(s); err == nil && strings.Count(s, ":") == 1 {
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval %q must be non-zero", s)
		}
		return ParsedSpec{Kind: SpecInterval, Source: "hhmm", Every: d}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be positive, got %s", d)
		}
		return ParsedSpec{Kind: SpecInterval, Source: "duration", Every: d}, nil
	}

	if _, err := specParser.Parse(s); err == nil {
		return ParsedSpec{Kind: SpecCron, Source: "cron", Cron: s}, nil
	}
	return ParsedSpec{}, fmt.Errorf("unrecognized schedule %q", raw)
}
