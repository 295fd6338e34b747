// Package dates parses the calendar dates accepted by requests and uploads.
package dates

import (
	"errors"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const ISO = "2006-01-02"

var ErrInvalidDate = errors.New("invalid_date")

// RequestLayouts are accepted by JSON endpoints.
var RequestLayouts = []string{ISO, "02-01-2006"}

// UploadLayouts are accepted in spreadsheet cells.
var UploadLayouts = []string{"01/02/2006", "02-Jan-06", "01-02-2006"}

// Parse returns the UTC midnight of value, trying layouts first.
func Parse(value string, layouts ...string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDate
	}
	if len(layouts) == 0 {
		layouts = RequestLayouts
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return Day(t), nil
		}
	}

	cfg := &now.Config{TimeLocation: time.UTC, TimeFormats: layouts}
	t, err := cfg.Parse(value)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return Day(t), nil
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return now.New(t.UTC()).BeginningOfDay()
}

// Format renders a date the way responses carry it.
func Format(t time.Time) string {
	return t.UTC().Format(ISO)
}
