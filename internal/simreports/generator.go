package simreports

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/safesite/proximity/pkg/logger"
)

const randomFloatDivisor = 1000000

// Distance bands for synthetic sightings, in meters. Close encounters are
// weighted so alerting paths get exercised.
const (
	closeMin  = 0.5
	closeMax  = 3.0
	nearMin   = 3.0
	nearMax   = 8.0
	farMin    = 8.0
	farMax    = 40.0
	bandCount = 4
)

// RSSI noise half-width in dBm applied to each synthetic reading.
const noiseAmplitude = 3.0

func randomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomInt(limit int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	return int(n.Int64())
}

// generateReports creates synthetic sightings across the configured fleet.
func generateReports(ctx context.Context, config *Config, stats *Stats) ([]Report, error) {
	logger.Get().Info(ctx, "generating sighting reports",
		logger.Int("numReports", config.NumReports),
		logger.Int("beacons", config.Beacons),
		logger.Int("gateways", config.Gateways),
	)

	reports := make([]Report, config.NumReports)
	for i := range reports {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		reports[i] = generateSingleReport(config)
	}

	stats.ReportsGenerated = len(reports)
	logger.Get().Info(ctx, "generated reports successfully", logger.Int("count", len(reports)))
	return reports, nil
}

// generateSingleReport picks a random pair and synthesizes an RSSI reading
// from a banded distance through the log-distance path-loss model.
func generateSingleReport(config *Config) Report {
	beacon := "sim-beacon-" + strconv.Itoa(randomInt(config.Beacons))
	gateway := "sim-gateway-" + strconv.Itoa(randomInt(config.Gateways))

	distance := generateBandedDistance()
	rssi := config.TxPower - 10*config.PathLoss*math.Log10(distance)
	rssi += (randomFloat()*2 - 1) * noiseAmplitude
	if rssi >= 0 {
		rssi = -1
	}

	return Report{
		BeaconID:  beacon,
		GatewayID: gateway,
		RSSI:      math.Round(rssi*10) / 10,
		TS:        time.Now().UTC().Format(time.RFC3339),
	}
}

// generateBandedDistance draws from close, near, and far bands so traffic
// covers in-range, boundary, and out-of-range decisions. Close sightings
// appear twice as often as the other bands.
func generateBandedDistance() float64 {
	switch randomInt(bandCount) {
	case 0, 1:
		return closeMin + randomFloat()*(closeMax-closeMin)
	case 2:
		return nearMin + randomFloat()*(nearMax-nearMin)
	default:
		return farMin + randomFloat()*(farMax-farMin)
	}
}
