package service

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"
)

func parseBasicAuthPair(auth string) (username, password string, ok bool) {
	if auth == "" {
		return "", "", false
	}
	parts := strings.SplitN(auth, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// parseISODate accepts the date and timestamp layouts the upstream services are known to send
func parseISODate(dateStr string) (time.Time, error) {
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.000",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, dateStr); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", dateStr)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil counts calendar days from now to expiry, negative once expiry has passed
func daysUntil(now, expiry time.Time) int {
	return int(math.Round(startOfDay(expiry).Sub(startOfDay(now)).Hours() / 24))
}

// addJitter spreads periodic work across instances, jitterPercent is 0.0-1.0
func addJitter(duration time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 {
		return duration
	}
	jitterRange := float64(duration) * jitterPercent
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange

	result := time.Duration(float64(duration) + jitter)
	if result <= 0 {
		result = duration / 2
	}
	return result
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = instanceName
	}
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}
