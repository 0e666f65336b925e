package main

import (
	"encoding/json"
	"strconv"
	"time"
)

// decodeSiriJson walks Siri?.ServiceDelivery.VehicleMonitoringDelivery[].VehicleActivity[].
func decodeSiriJson(b []byte) ([]RawRecord, error) {
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, err
	}
	// Handle optional top-level "Siri" wrapper
	if siri, ok := root["Siri"].(map[string]any); ok && siri != nil {
		root = siri
	}
	sd, _ := root["ServiceDelivery"].(map[string]any)
	vmdArr, _ := sd["VehicleMonitoringDelivery"].([]any)
	records := make([]RawRecord, 0, 256)
	for _, vmdAny := range vmdArr {
		vmd, _ := vmdAny.(map[string]any)
		vaArr, _ := vmd["VehicleActivity"].([]any)
		for _, vaAny := range vaArr {
			va, _ := vaAny.(map[string]any)
			mvj, _ := va["MonitoredVehicleJourney"].(map[string]any)
			if mvj == nil {
				continue
			}
			rec := RawRecord{
				VehicleID: stringFrom(mvj["VehicleRef"]),
				Latitude:  floatFromNested(mvj, "VehicleLocation", "Latitude"),
				Longitude: floatFromNested(mvj, "VehicleLocation", "Longitude"),
				Timestamp: unixFrom(stringFrom(va["RecordedAtTime"])),
			}
			if rec.VehicleID == "" {
				rec.VehicleID = stringFromNested(mvj, "FramedVehicleJourneyRef", "DatedVehicleJourneyRef")
			}
			if br := floatFrom(mvj["Bearing"]); br != nil {
				rec.Bearing = *br
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func stringFrom(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		// {"value": "..."} form used by some SIRI-lite producers
		return stringFrom(s["value"])
	}
	return ""
}

func stringFromNested(m map[string]any, k1, k2 string) string {
	m1, _ := m[k1].(map[string]any)
	return stringFrom(m1[k2])
}

func floatFromNested(m map[string]any, k1, k2 string) *float64 {
	m1, _ := m[k1].(map[string]any)
	return floatFrom(m1[k2])
}

func floatFrom(v any) *float64 {
	switch v := v.(type) {
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func unixFrom(s string) *int64 {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	ts := t.Unix()
	return &ts
}
