// Package confidence turns the time left in the trading session into a
// 0-100 confidence score for the end-of-day forecast.
package confidence

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// ErrInvalidTimeFormat is returned for anything that is not HH:MM:SS.
var ErrInvalidTimeFormat = errors.New("invalid time format")

// SessionSeconds is the fixed session length the confidence decays over.
const SessionSeconds = 86400

// Estimate maps the remaining time until close, formatted HH:MM:SS, to a
// confidence in [0, 100] rounded to two decimals. A full day left gives 0,
// nothing left gives 100.
func Estimate(remaining string) (float64, error) {
	secs, err := parseHMS(remaining)
	if err != nil {
		return 0, err
	}
	ratio := 1 - secs/SessionSeconds
	c := math.Max(0, math.Min(100, ratio*100))
	return math.Round(c*100) / 100, nil
}

// parseHMS returns the total seconds of an HH:MM:SS string. The sum is
// taken in float64 so a huge hours field cannot wrap around.
func parseHMS(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
		}
		vals[i] = float64(v)
	}
	return vals[0]*3600 + vals[1]*60 + vals[2], nil
}

// Session is the daily close time in a fixed location.
type Session struct {
	Location *time.Location
	Hour     int
	Minute   int
}

// NewSession parses a "HH:MM" close time in the named IANA zone.
func NewSession(tz, closeAt string) (Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Session{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	t, err := time.Parse("15:04", closeAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse close time %q: %w", closeAt, err)
	}
	return Session{Location: loc, Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Countdown formats the time from now until today's close as HH:MM:SS.
// Once the close has passed it returns 00:00:00.
func (s Session) Countdown(now time.Time) string {
	local := now.In(s.Location)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, s.Location)
	if !local.Before(closeAt) {
		return "00:00:00"
	}
	total := int(closeAt.Sub(local).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
