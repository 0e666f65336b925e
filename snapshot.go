package main

import (
	"context"
	"sort"
	"time"
)

// LiveWindow is how far behind the newest observation a row may be and still
// count as part of the live snapshot.
const LiveWindow = 60 * time.Second

const asOfLayout = "2 Jan 2006 15:04:05"

// Metrics summarises a set of rows.
type Metrics struct {
	Total   int    `json:"total"`
	Regions int    `json:"regions"`
	Busiest string `json:"busiest,omitempty"`
}

// Snapshot is what the reader hands the presentation layer. Rows is nil unless
// State is StorePopulated.
type Snapshot struct {
	State    StoreState
	Rows     []VehiclePosition
	Metrics  Metrics
	AsOf     string
	AsOfUnix int64
}

type positionReader interface {
	State(ctx context.Context) (StoreState, error)
	MaxTimestamp(ctx context.Context) (int64, bool, error)
	PositionsSince(ctx context.Context, from int64) ([]VehiclePosition, error)
	AllPositions(ctx context.Context) ([]VehiclePosition, error)
}

type SnapshotReader struct {
	store positionReader
	loc   *time.Location
}

func NewSnapshotReader(store positionReader, loc *time.Location) *SnapshotReader {
	if loc == nil {
		loc = time.UTC
	}
	return &SnapshotReader{store: store, loc: loc}
}

// Live returns the most recent row per vehicle within LiveWindow of the newest
// stored timestamp. It reflects the last successful poll, not wall-clock time.
func (r *SnapshotReader) Live(ctx context.Context) (*Snapshot, error) {
	snap, newest, err := r.begin(ctx)
	if err != nil || snap.State != StorePopulated {
		return snap, err
	}
	rows, err := r.store.PositionsSince(ctx, newest-int64(LiveWindow/time.Second))
	if err != nil {
		return nil, err
	}
	snap.Rows = LatestPerVehicle(rows)
	snap.Metrics = liveMetrics(snap.Rows)
	return snap, nil
}

// History returns every stored row.
func (r *SnapshotReader) History(ctx context.Context) (*Snapshot, error) {
	snap, _, err := r.begin(ctx)
	if err != nil || snap.State != StorePopulated {
		return snap, err
	}
	rows, err := r.store.AllPositions(ctx)
	if err != nil {
		return nil, err
	}
	snap.Rows = rows
	snap.Metrics = Metrics{Total: len(rows), Regions: countRegions(rows)}
	return snap, nil
}

func (r *SnapshotReader) begin(ctx context.Context) (*Snapshot, int64, error) {
	state, err := r.store.State(ctx)
	if err != nil {
		return nil, 0, err
	}
	snap := &Snapshot{State: state}
	if state != StorePopulated {
		return snap, 0, nil
	}
	newest, ok, err := r.store.MaxTimestamp(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		snap.State = StoreEmpty
		return snap, 0, nil
	}
	snap.AsOfUnix = newest
	snap.AsOf = time.Unix(newest, 0).In(r.loc).Format(asOfLayout)
	return snap, newest, nil
}

// LatestPerVehicle keeps one row per vehicle id: the highest timestamp, then the
// latest inserted. The result is ordered by region, then vehicle id.
func LatestPerVehicle(rows []VehiclePosition) []VehiclePosition {
	latest := make(map[string]VehiclePosition, len(rows))
	for _, row := range rows {
		cur, ok := latest[row.VehicleID]
		if !ok || row.Timestamp > cur.Timestamp || (row.Timestamp == cur.Timestamp && row.Seq > cur.Seq) {
			latest[row.VehicleID] = row
		}
	}
	out := make([]VehiclePosition, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].VehicleID < out[j].VehicleID
	})
	return out
}

func liveMetrics(rows []VehiclePosition) Metrics {
	counts := regionCounts(rows)
	m := Metrics{Total: len(rows), Regions: len(counts)}
	best := 0
	for region, n := range counts {
		if n > best || (n == best && region < m.Busiest) {
			m.Busiest, best = region, n
		}
	}
	return m
}

func regionCounts(rows []VehiclePosition) map[string]int {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Region]++
	}
	return counts
}

func countRegions(rows []VehiclePosition) int {
	return len(regionCounts(rows))
}
