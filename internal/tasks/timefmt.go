package tasks

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the textual timestamp used on the wire and in data files,
// e.g. "08.02.25 11:00".
const TimeLayout = "02.01.06 15:04"

func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.ParseInLocation(TimeLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q, want dd.mm.yy hh:mm", ErrValidation, raw)
	}
	return t, nil
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(TimeLayout)
}
