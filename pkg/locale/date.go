// Package locale renders dates the way notifications and emails show them
// to Portuguese speaking users.
package locale

import (
	"fmt"
	"time"

	"github.com/go-playground/locales/pt"
)

var portuguese = pt.New()

// MonthName returns the lower-case Portuguese name of m.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return portuguese.MonthWide(m)
}

// FormatDate renders t in loc as "dia 05 de janeiro, às 9:30h".
// The day is zero padded, the 24h hour is not.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("dia %02d de %s, às %d:%02dh", t.Day(), MonthName(t.Month()), t.Hour(), t.Minute())
}

// LoadLocation resolves a zone name, falling back to UTC for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}
