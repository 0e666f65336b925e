package main

import (
	"math"
	"time"
)

// FreshnessWindow bounds a record's self-reported timestamp relative to the fetch time.
type FreshnessWindow struct {
	MaxAge          time.Duration
	FutureTolerance time.Duration
}

// DefaultFreshnessWindow keeps the last hour and tolerates five minutes of clock skew.
var DefaultFreshnessWindow = FreshnessWindow{
	MaxAge:          3600 * time.Second,
	FutureTolerance: 300 * time.Second,
}

// Contains reports whether ts (unix seconds) lies in [now-MaxAge, now+FutureTolerance].
func (w FreshnessWindow) Contains(ts int64, now time.Time) bool {
	n := now.Unix()
	return ts >= n-int64(w.MaxAge/time.Second) && ts <= n+int64(w.FutureTolerance/time.Second)
}

// FilterRecords drops candidates with missing or non-numeric coordinates/timestamp,
// (0,0)-style coordinates and stale or future timestamps. Survivors get defaults
// filled in and are tagged with now as their insert timestamp.
func FilterRecords(raw []RawRecord, now time.Time, window FreshnessWindow) []VehiclePosition {
	out := make([]VehiclePosition, 0, len(raw))
	insertTS := now.Unix()
	for _, r := range raw {
		lat, lon, ts, ok := coerce(r)
		if !ok {
			continue
		}
		if lat == 0 || lon == 0 {
			continue
		}
		if !window.Contains(ts, now) {
			continue
		}
		vid := r.VehicleID
		if vid == "" {
			vid = UnknownVehicleID
		}
		out = append(out, VehiclePosition{
			Region:          r.Region,
			Latitude:        lat,
			Longitude:       lon,
			Bearing:         finiteOrZero(r.Bearing),
			Speed:           finiteOrZero(r.Speed),
			VehicleID:       vid,
			Timestamp:       ts,
			InsertTimestamp: insertTS,
		})
	}
	return out
}

func coerce(r RawRecord) (lat, lon float64, ts int64, ok bool) {
	if r.Latitude == nil || r.Longitude == nil || r.Timestamp == nil {
		return 0, 0, 0, false
	}
	lat, lon = *r.Latitude, *r.Longitude
	if !isFinite(lat) || !isFinite(lon) {
		return 0, 0, 0, false
	}
	return lat, lon, *r.Timestamp, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func finiteOrZero(f float64) float64 {
	if isFinite(f) {
		return f
	}
	return 0
}
