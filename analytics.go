package main

import (
	"math"
	"sort"
	"time"

	"github.com/mmcloughlin/geohash"
)

const (
	maxSpeedKmh      = 120
	geohashPrecision = 7
	displayLayout    = "2006-01-02 15:04:05"
)

// SpeedKmh converts an upstream m/s reading to whole km/h, capped at maxSpeedKmh.
func SpeedKmh(mps float64) int {
	if !isFinite(mps) {
		return 0
	}
	kmh := math.RoundToEven(mps * 3.6)
	if kmh > maxSpeedKmh {
		kmh = maxSpeedKmh
	}
	return int(kmh)
}

// SortedRegions lists the distinct regions in rows, primary first and the rest
// alphabetically.
func SortedRegions(rows []VehiclePosition, primary string) []string {
	seen := make(map[string]bool)
	var others []string
	hasPrimary := false
	for _, row := range rows {
		if seen[row.Region] {
			continue
		}
		seen[row.Region] = true
		if row.Region == primary {
			hasPrimary = true
			continue
		}
		others = append(others, row.Region)
	}
	sort.Strings(others)
	if hasPrimary {
		return append([]string{primary}, others...)
	}
	return others
}

// RegionRows returns the rows of one region that can be placed on a map.
func RegionRows(rows []VehiclePosition, region string) []VehiclePosition {
	out := make([]VehiclePosition, 0)
	for _, row := range rows {
		if row.Region != region || row.Latitude == 0 || row.Longitude == 0 {
			continue
		}
		out = append(out, row)
	}
	return out
}

// DisplayRow is a row prepared for the table and map views.
type DisplayRow struct {
	Region      string  `json:"region"`
	VehicleID   string  `json:"vehicle_id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Bearing     float64 `json:"bearing"`
	SpeedKmh    int     `json:"speed_kmh"`
	AvgSpeedKmh int     `json:"avg_speed_kmh"`
	Timestamp   int64   `json:"timestamp"`
	Time        string  `json:"time"`
	Geohash     string  `json:"geohash"`
}

// DisplayRows orders rows newest first and adds the per-vehicle average speed
// over the given rows.
func DisplayRows(rows []VehiclePosition, loc *time.Location) []DisplayRow {
	if loc == nil {
		loc = time.UTC
	}
	avg := vehicleAverageKmh(rows)

	sorted := make([]VehiclePosition, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	out := make([]DisplayRow, 0, len(sorted))
	for _, row := range sorted {
		out = append(out, DisplayRow{
			Region:      row.Region,
			VehicleID:   row.VehicleID,
			Latitude:    roundTo(row.Latitude, 6),
			Longitude:   roundTo(row.Longitude, 6),
			Bearing:     roundTo(row.Bearing, 1),
			SpeedKmh:    SpeedKmh(row.Speed),
			AvgSpeedKmh: int(math.RoundToEven(avg[row.VehicleID])),
			Timestamp:   row.Timestamp,
			Time:        time.Unix(row.Timestamp, 0).In(loc).Format(displayLayout),
			Geohash:     geohash.EncodeWithPrecision(row.Latitude, row.Longitude, geohashPrecision),
		})
	}
	return out
}

func vehicleAverageKmh(rows []VehiclePosition) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, row := range rows {
		sums[row.VehicleID] += float64(SpeedKmh(row.Speed))
		counts[row.VehicleID]++
	}
	avg := make(map[string]float64, len(sums))
	for id, sum := range sums {
		avg[id] = sum / float64(counts[id])
	}
	return avg
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

type RegionCount struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

type VehicleSpeed struct {
	VehicleID   string  `json:"vehicle_id"`
	Region      string  `json:"region"`
	AvgSpeedKmh float64 `json:"avg_speed_kmh"`
}

// Analytics is the aggregate view over the live snapshot and the full history.
type Analytics struct {
	Regions          int            `json:"regions"`
	VehiclesByRegion []RegionCount  `json:"vehicles_by_region"`
	TotalVehicles    int            `json:"total_vehicles"`
	MovingVehicles   int            `json:"moving_vehicles"`
	AvgSpeedKmh      float64        `json:"avg_speed_kmh"`
	MedianSpeedKmh   float64        `json:"median_speed_kmh"`
	MaxSpeedKmh      float64        `json:"max_speed_kmh"`
	MinSpeedKmh      float64        `json:"min_speed_kmh"`
	VehicleSpeeds    []VehicleSpeed `json:"vehicle_speeds"`
}

// BuildAnalytics counts distinct vehicles per region over history; speed
// averages and the median only consider moving (non-zero) readings.
func BuildAnalytics(live, history []VehiclePosition) Analytics {
	a := Analytics{Regions: countRegions(live)}

	for _, row := range live {
		if SpeedKmh(row.Speed) > 0 {
			a.MovingVehicles++
		}
	}

	type vehicleKey struct{ id, region string }
	perRegion := make(map[string]map[string]bool)
	allVehicles := make(map[string]bool)
	sums := make(map[vehicleKey]float64)
	counts := make(map[vehicleKey]int)
	var order []vehicleKey
	var moving []float64

	for i, row := range history {
		kmh := float64(SpeedKmh(row.Speed))
		if i == 0 || kmh > a.MaxSpeedKmh {
			a.MaxSpeedKmh = kmh
		}
		if i == 0 || kmh < a.MinSpeedKmh {
			a.MinSpeedKmh = kmh
		}
		if kmh > 0 {
			moving = append(moving, kmh)
		}
		if perRegion[row.Region] == nil {
			perRegion[row.Region] = make(map[string]bool)
		}
		perRegion[row.Region][row.VehicleID] = true
		allVehicles[row.VehicleID] = true

		k := vehicleKey{row.VehicleID, row.Region}
		if counts[k] == 0 {
			order = append(order, k)
		}
		sums[k] += kmh
		counts[k]++
	}

	a.TotalVehicles = len(allVehicles)
	for region, ids := range perRegion {
		a.VehiclesByRegion = append(a.VehiclesByRegion, RegionCount{Region: region, Count: len(ids)})
	}
	sort.Slice(a.VehiclesByRegion, func(i, j int) bool {
		ri, rj := a.VehiclesByRegion[i], a.VehiclesByRegion[j]
		if ri.Count != rj.Count {
			return ri.Count < rj.Count
		}
		return ri.Region < rj.Region
	})

	if len(moving) > 0 {
		var sum float64
		for _, v := range moving {
			sum += v
		}
		a.AvgSpeedKmh = roundTo(sum/float64(len(moving)), 2)
		a.MedianSpeedKmh = median(moving)
	}

	for _, k := range order {
		a.VehicleSpeeds = append(a.VehicleSpeeds, VehicleSpeed{
			VehicleID:   k.id,
			Region:      k.region,
			AvgSpeedKmh: roundTo(sums[k]/float64(counts[k]), 2),
		})
	}
	return a
}

func median(vals []float64) float64 {
	s := make([]float64, len(vals))
	copy(s, vals)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
