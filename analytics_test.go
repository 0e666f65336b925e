package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpeedKmh(t *testing.T) {
	tests := []struct {
		mps  float64
		want int
	}{
		{0, 0},
		{10, 36},
		{20, 72},
		{30, 108},
		{33.3, 120},
		{40, 120},
		{0.625, 2},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SpeedKmh(tt.mps), "mps=%v", tt.mps)
	}
}

func TestSortedRegions(t *testing.T) {
	rows := []VehiclePosition{
		{Region: "Penang"},
		{Region: "Kuantan"},
		{Region: "Rapid Bus KL"},
		{Region: "Penang"},
		{Region: "Ipoh"},
	}
	assert.Equal(t, []string{"Rapid Bus KL", "Ipoh", "Kuantan", "Penang"}, SortedRegions(rows, "Rapid Bus KL"))
	assert.Equal(t, []string{"Ipoh", "Kuantan", "Penang", "Rapid Bus KL"}, SortedRegions(rows, "Johor"))
	assert.Empty(t, SortedRegions(nil, "Johor"))
}

func TestRegionRows(t *testing.T) {
	rows := []VehiclePosition{
		position("A", "1", 3.1, 101.6, 1),
		position("A", "2", 0, 101.6, 1),
		position("B", "3", 3.1, 101.6, 1),
	}
	out := RegionRows(rows, "A")
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].VehicleID)
	assert.NotNil(t, RegionRows(nil, "A"))
}

func TestDisplayRows(t *testing.T) {
	rows := []VehiclePosition{
		{Region: "A", VehicleID: "v1", Latitude: 3.1234567, Longitude: 101.7654321, Bearing: 45.25, Speed: 10, Timestamp: 1_700_000_000},
		{Region: "A", VehicleID: "v1", Latitude: 3.2, Longitude: 101.8, Speed: 20, Timestamp: 1_700_000_100},
		{Region: "A", VehicleID: "v2", Latitude: 3.3, Longitude: 101.9, Speed: 0, Timestamp: 1_700_000_050},
	}
	out := DisplayRows(rows, time.UTC)
	require.Len(t, out, 3)

	assert.Equal(t, int64(1_700_000_100), out[0].Timestamp)
	assert.Equal(t, "v2", out[1].VehicleID)
	assert.Equal(t, int64(1_700_000_000), out[2].Timestamp)

	last := out[2]
	assert.Equal(t, 3.123457, last.Latitude)
	assert.Equal(t, 101.765432, last.Longitude)
	assert.Equal(t, 45.3, last.Bearing)
	assert.Equal(t, 36, last.SpeedKmh)
	assert.Equal(t, 54, last.AvgSpeedKmh)
	assert.Equal(t, "2023-11-14 22:13:20", last.Time)
	assert.Len(t, last.Geohash, 7)

	assert.Equal(t, 0, out[1].AvgSpeedKmh)
}

func TestBuildAnalytics(t *testing.T) {
	history := []VehiclePosition{
		{Region: "A", VehicleID: "v1", Speed: 10, Timestamp: 1},
		{Region: "A", VehicleID: "v1", Speed: 20, Timestamp: 2},
		{Region: "A", VehicleID: "v2", Speed: 0, Timestamp: 2},
		{Region: "B", VehicleID: "v3", Speed: 30, Timestamp: 2},
	}
	live := []VehiclePosition{history[1], history[2], history[3]}

	a := BuildAnalytics(live, history)
	assert.Equal(t, 2, a.Regions)
	assert.Equal(t, 3, a.TotalVehicles)
	assert.Equal(t, 2, a.MovingVehicles)
	assert.Equal(t, []RegionCount{{Region: "B", Count: 1}, {Region: "A", Count: 2}}, a.VehiclesByRegion)
	assert.Equal(t, 72.0, a.AvgSpeedKmh)
	assert.Equal(t, 72.0, a.MedianSpeedKmh)
	assert.Equal(t, 108.0, a.MaxSpeedKmh)
	assert.Equal(t, 0.0, a.MinSpeedKmh)
	assert.Equal(t, []VehicleSpeed{
		{VehicleID: "v1", Region: "A", AvgSpeedKmh: 54},
		{VehicleID: "v2", Region: "A", AvgSpeedKmh: 0},
		{VehicleID: "v3", Region: "B", AvgSpeedKmh: 108},
	}, a.VehicleSpeeds)
}

func TestBuildAnalytics_NoMovement(t *testing.T) {
	history := []VehiclePosition{{Region: "A", VehicleID: "v1", Speed: 0}}
	a := BuildAnalytics(history, history)
	assert.Zero(t, a.MovingVehicles)
	assert.Zero(t, a.AvgSpeedKmh)
	assert.Zero(t, a.MedianSpeedKmh)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}
