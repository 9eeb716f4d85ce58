package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// IndiaNow returns the current time in the shop's timezone (IST). Used when
// deciding whether date-based reminders are due.
func IndiaNow() (time.Time, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}
