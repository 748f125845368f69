package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskhive/taskhive/internal/printer"
)

func TestTimeAgo(t *testing.T) {
	tests := map[string]struct {
		offset time.Duration
		exp    string
	}{
		"A few seconds back.":     {offset: -5 * time.Second, exp: "5 seconds ago (UTC)"},
		"Exactly one minute.":     {offset: -time.Minute, exp: "1 minute ago (UTC)"},
		"Some minutes back.":      {offset: -10 * time.Minute, exp: "10 minutes ago (UTC)"},
		"Hours back.":             {offset: -3 * time.Hour, exp: "3 hours ago (UTC)"},
		"Days back.":              {offset: -49 * time.Hour, exp: "2 days ago (UTC)"},
		"A future time is noted.": {offset: time.Hour, exp: "in the future (UTC)"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := printer.TimeAgo(time.Now().Add(test.offset))
			assert.Equal(t, test.exp, got)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-01 12:30:00 UTC", printer.FormatTimestamp(ts))
}
