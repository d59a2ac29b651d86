package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/safesite/proximity/internal/simreports"
	"github.com/safesite/proximity/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumReports       = 10000
	defaultBeacons          = 50
	defaultGateways         = 10
	defaultWorkerMultiplier = 2
	defaultTimeout          = 30 * time.Second
	defaultRunTimeout       = 10 * time.Minute
	defaultTxPower          = -59.0
	defaultPathLoss         = 2.0
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		reports  = flag.Int("reports", defaultNumReports, "Number of sighting reports to generate and submit")
		beacons  = flag.Int("beacons", defaultBeacons, "Number of distinct beacons in the simulated fleet")
		gateways = flag.Int("gateways", defaultGateways, "Number of distinct gateways in the simulated fleet")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkerMultiplier, "Number of concurrent submitters")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		txPower  = flag.Float64("tx-power", defaultTxPower, "Reference RSSI at one meter for synthesis")
		pathLoss = flag.Float64("path-loss", defaultPathLoss, "Path-loss exponent for synthesis")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &simreports.Config{
		BaseURL:    *baseURL,
		NumReports: *reports,
		Beacons:    *beacons,
		Gateways:   *gateways,
		Workers:    *workers,
		Timeout:    *timeout,
		TxPower:    *txPower,
		PathLoss:   *pathLoss,
		Verbose:    *verbose,
	}

	if err := simreports.Run(ctx, config); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		return
	}
}
