package main

import "fmt"

// UnknownVehicleID is stored when the upstream entity carries no vehicle id.
const UnknownVehicleID = "Unknown"

// VehiclePosition is one persisted observation of a vehicle.
type VehiclePosition struct {
	Region          string  `db:"region" json:"region"`
	Latitude        float64 `db:"latitude" json:"latitude"`
	Longitude       float64 `db:"longitude" json:"longitude"`
	Bearing         float64 `db:"bearing" json:"bearing"`
	Speed           float64 `db:"speed" json:"speed"`
	VehicleID       string  `db:"vehicle_id" json:"vehicle_id"`
	Timestamp       int64   `db:"timestamp" json:"timestamp"`
	InsertTimestamp int64   `db:"insert_timestamp" json:"insert_timestamp"`

	// Seq is the store's row id, zero for records that were never stored.
	Seq int64 `db:"seq" json:"-"`
}

// RawRecord is a candidate record as decoded from a feed. Coordinates and timestamp
// are nil when the upstream message did not carry them.
type RawRecord struct {
	Region    string
	VehicleID string
	Latitude  *float64
	Longitude *float64
	Bearing   float64
	Speed     float64
	Timestamp *int64
}

// StoreState tells the dashboard which message to show.
type StoreState int

const (
	StoreUninitialized StoreState = iota
	StoreEmpty
	StorePopulated
)

func (s StoreState) String() string {
	switch s {
	case StoreEmpty:
		return "empty"
	case StorePopulated:
		return "ready"
	default:
		return "uninitialized"
	}
}

func (s StoreState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StoreState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "uninitialized":
		*s = StoreUninitialized
	case "empty":
		*s = StoreEmpty
	case "ready":
		*s = StorePopulated
	default:
		return fmt.Errorf("unknown store state %q", b)
	}
	return nil
}
