package main

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
)

// decodeSiriXml is a minimal streaming extraction for SIRI VM XML (namespace
// tolerant via Name.Local).
func decodeSiriXml(body []byte) ([]RawRecord, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var (
		inSiri, inSD, inVMD, inVA, inMVJ, inVL bool
		cur                                    siriActivity
		records                                []RawRecord
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "Siri":
				inSiri = true
			case "ServiceDelivery":
				if inSiri {
					inSD = true
				}
			case "VehicleMonitoringDelivery":
				if inSD {
					inVMD = true
				}
			case "VehicleActivity":
				if inVMD {
					inVA = true
					cur = siriActivity{}
				}
			case "MonitoredVehicleJourney":
				if inVA {
					inMVJ = true
				}
			case "VehicleLocation":
				if inMVJ || inVA {
					inVL = true
				}
			case "RecordedAtTime":
				if inVA && !inMVJ {
					cur.recordedAt = decodeText(dec, &se)
				}
			case "VehicleRef":
				if inMVJ || inVA {
					cur.id = decodeText(dec, &se)
				}
			case "Bearing":
				if inMVJ {
					cur.bearing = decodeText(dec, &se)
				}
			case "Latitude":
				if inVL {
					cur.lat = decodeText(dec, &se)
				}
			case "Longitude":
				if inVL {
					cur.lon = decodeText(dec, &se)
				}
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "VehicleLocation":
				inVL = false
			case "MonitoredVehicleJourney":
				inMVJ = false
			case "VehicleActivity":
				if inVA {
					inVA = false
					records = append(records, cur.record())
				}
			case "VehicleMonitoringDelivery":
				inVMD = false
			case "ServiceDelivery":
				inSD = false
			case "Siri":
				inSiri = false
			}
		}
	}
	return records, nil
}

type siriActivity struct {
	id, lat, lon, bearing, recordedAt string
}

func (a siriActivity) record() RawRecord {
	rec := RawRecord{
		VehicleID: a.id,
		Latitude:  floatFrom(a.lat),
		Longitude: floatFrom(a.lon),
		Timestamp: unixFrom(a.recordedAt),
	}
	if f, err := strconv.ParseFloat(a.bearing, 64); err == nil {
		rec.Bearing = f
	}
	return rec
}

func decodeText(dec *xml.Decoder, se *xml.StartElement) string {
	var v string
	if err := dec.DecodeElement(&v, se); err != nil {
		return ""
	}
	return v
}
