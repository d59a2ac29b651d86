// Package model contains domain models passed between layers.
package model

import "time"

// ReportKind discriminates the closed set of inbound report variants.
type ReportKind int

const (
	// KindRSSI is a raw gateway sighting carrying only an RSSI reading.
	KindRSSI ReportKind = iota
	// KindDistance is a report with the distance already supplied.
	KindDistance
)

// SightingReport is one inbound beacon sighting after boundary validation.
// Exactly one of the two variants applies: an RSSI-only sighting or a
// distance-supplied report (which may still carry the RSSI it was derived
// from).
type SightingReport struct {
	Kind      ReportKind
	BeaconID  string
	GatewayID string
	RSSI      float64 // dBm; meaningful for KindRSSI, optional for KindDistance
	HasRSSI   bool
	Distance  float64 // meters; meaningful for KindDistance only
	Timestamp time.Time
}

// RSSISighting builds the rssi-only variant.
func RSSISighting(beaconID, gatewayID string, rssi float64, ts time.Time) SightingReport {
	return SightingReport{
		Kind:      KindRSSI,
		BeaconID:  beaconID,
		GatewayID: gatewayID,
		RSSI:      rssi,
		HasRSSI:   true,
		Timestamp: ts,
	}
}

// DistanceReport builds the distance-supplied variant. hasRSSI marks whether
// the optional rssi value is present.
func DistanceReport(beaconID, gatewayID string, distance float64, rssi float64, hasRSSI bool, ts time.Time) SightingReport {
	return SightingReport{
		Kind:      KindDistance,
		BeaconID:  beaconID,
		GatewayID: gatewayID,
		Distance:  distance,
		RSSI:      rssi,
		HasRSSI:   hasRSSI,
		Timestamp: ts,
	}
}
