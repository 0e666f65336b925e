package main

import (
	"math"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const (
	formatGTFSRT   = "gtfsrt"
	formatSiriJSON = "siri_json"
	formatSiriXML  = "siri_xml"
)

// feedDecoder turns a response body into candidate records. Region is filled in
// by the caller.
type feedDecoder func(body []byte) ([]RawRecord, error)

var decoders = map[string]feedDecoder{
	formatGTFSRT:   decodeGtfsRt,
	formatSiriJSON: decodeSiriJson,
	formatSiriXML:  decodeSiriXml,
}

func decodeGtfsRt(body []byte) ([]RawRecord, error) {
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, err
	}
	records := make([]RawRecord, 0, len(feed.Entity))
	for _, ent := range feed.Entity {
		if ent == nil || ent.Vehicle == nil {
			continue
		}
		vp := ent.Vehicle
		rec := RawRecord{}
		if vp.Vehicle != nil && vp.Vehicle.Id != nil {
			rec.VehicleID = *vp.Vehicle.Id
		}
		if pos := vp.Position; pos != nil {
			if pos.Latitude != nil {
				lat := float64(*pos.Latitude)
				rec.Latitude = &lat
			}
			if pos.Longitude != nil {
				lon := float64(*pos.Longitude)
				rec.Longitude = &lon
			}
			rec.Bearing = float64(pos.GetBearing())
			rec.Speed = float64(pos.GetSpeed())
		}
		if vp.Timestamp != nil && *vp.Timestamp <= math.MaxInt64 {
			ts := int64(*vp.Timestamp)
			rec.Timestamp = &ts
		}
		records = append(records, rec)
	}
	return records, nil
}
