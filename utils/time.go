// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// JakartaNow returns the current wall-clock time in Western Indonesia Time.
func JakartaNow() (time.Time, error) {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().In(loc), nil
}

// AgeOn returns the age in whole years of someone born on birth, as of the calendar
// day of now. The year difference is decremented when now's month/day precedes the
// birth month/day.
func AgeOn(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
