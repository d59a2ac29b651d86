package simreports

import "time"

// Config holds configuration for a simulated reporting run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumReports int           // Number of sighting reports to generate
	Beacons    int           // Number of distinct beacons in the fleet
	Gateways   int           // Number of distinct gateways in the fleet
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	TxPower    float64       // Reference RSSI at one meter
	PathLoss   float64       // Path-loss exponent for RSSI synthesis
	Verbose    bool          // Enable verbose logging
}

// Report is the wire shape submitted to POST /reports.
type Report struct {
	BeaconID  string  `json:"beacon_id"`
	GatewayID string  `json:"gateway_id"`
	RSSI      float64 `json:"rssi"`
	TS        string  `json:"ts"`
}

// AckResponse is the response from report submission.
type AckResponse struct {
	Status string `json:"status"`
}

// Stats holds run statistics.
type Stats struct {
	ReportsGenerated int
	ReportsSubmitted int
	ReportsAccepted  int
	ReportsRejected  int
	ReportsThrottled int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
