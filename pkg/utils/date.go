package utils

import (
	"log"
	"time"
)

// TimeNowKST returns the current time in the Seoul market timezone.
func TimeNowKST() time.Time {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		log.Fatal("Failed to load location", err)
	}
	return time.Now().In(loc)
}

// DateKey formats t as a compact yyyymmdd key used for dated result rows.
func DateKey(t time.Time) string {
	return t.Format("20060102")
}

// StartOfDay returns midnight of t's calendar day in t's own location.
// Truncate(24h) would cut on the UTC epoch instead, shifting the boundary
// by the zone offset.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
