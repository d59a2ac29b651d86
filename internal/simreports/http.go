package simreports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/safesite/proximity/pkg/logger"
)

// httpClient wraps http.Client with the configured timeout.
type httpClient struct {
	client *http.Client
}

func newHTTPClient(config *Config) *httpClient {
	return &httpClient{client: &http.Client{Timeout: config.Timeout}}
}

func (c *httpClient) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.client.Do(req)
}

func (c *httpClient) postJSON(ctx context.Context, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// submitReports posts reports concurrently through a worker pool.
func submitReports(ctx context.Context, config *Config, reports []Report, stats *Stats) error {
	logger.Get().Info(ctx, "submitting reports",
		logger.Int("count", len(reports)),
		logger.Int("workers", config.Workers),
	)

	client := newHTTPClient(config)
	url := config.BaseURL + "/reports"

	var accepted, rejected, throttled, submitted int64

	reportChan := make(chan Report, config.Workers*2)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for report := range reportChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				atomic.AddInt64(&submitted, 1)
				switch submitSingleReport(ctx, client, url, report) {
				case http.StatusAccepted:
					atomic.AddInt64(&accepted, 1)
				case http.StatusTooManyRequests:
					atomic.AddInt64(&throttled, 1)
				default:
					atomic.AddInt64(&rejected, 1)
				}
			}
		}()
	}

	go func() {
		defer close(reportChan)
		for _, report := range reports {
			select {
			case <-ctx.Done():
				return
			case reportChan <- report:
			}
		}
	}()

	wg.Wait()

	stats.ReportsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.ReportsAccepted = int(atomic.LoadInt64(&accepted))
	stats.ReportsThrottled = int(atomic.LoadInt64(&throttled))
	stats.ReportsRejected = int(atomic.LoadInt64(&rejected))

	logger.Get().Info(ctx, "report submission completed",
		logger.Int("accepted", stats.ReportsAccepted),
		logger.Int("throttled", stats.ReportsThrottled),
		logger.Int("rejected", stats.ReportsRejected),
	)
	return nil
}

func submitSingleReport(ctx context.Context, client *httpClient, url string, report Report) int {
	resp, err := client.postJSON(ctx, url, report)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
