package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// metricsPort is the fixed port every discovered address exposes its
// Prometheus-format metrics endpoint on.
const metricsPort = "9001"

// Fetcher resolves the set of addresses to scrape for raw metrics lines.
// Production uses DNSFetcher (discovery-host DNS resolution); local/dev
// injects a fixed-address or fixture-backed Fetcher, since the exact
// discovery target varies by deployment — this boundary stays injectable
// rather than hardcoding the hostname format deeper in the call chain.
type Fetcher interface {
	ResolveAddresses(ctx context.Context) ([]string, error)
}

// DNSFetcher resolves a discovery host of the form
// "discover.monitor.<pool>.snowflakecomputing.internal" via DNS.
type DNSFetcher struct {
	Host     string
	Resolver *net.Resolver
}

// ResolveAddresses looks up Host and deduplicates the returned addresses.
func (d DNSFetcher) ResolveAddresses(ctx context.Context) ([]string, error) {
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupHost(ctx, d.Host)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resolving discovery host %q: %w", d.Host, err)
	}

	seen := make(map[string]struct{}, len(addrs))
	var unique []string
	for _, a := range addrs {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}
	return unique, nil
}

// MetricsService fans out GETs to every discovered address's metrics
// endpoint and concatenates the line-split responses. A failure on any one
// address is logged and skipped.
type MetricsService struct {
	fetcher    Fetcher
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMetricsService builds a MetricsService over fetcher.
func NewMetricsService(fetcher Fetcher, httpClient *http.Client, logger *slog.Logger) *MetricsService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MetricsService{fetcher: fetcher, httpClient: httpClient, logger: logger}
}

// FetchMetrics resolves addresses, scrapes each concurrently (one errgroup
// goroutine per address, with no concurrency limit), and returns the
// concatenated set of lines.
func (m *MetricsService) FetchMetrics(ctx context.Context) ([]string, error) {
	addrs, err := m.fetcher.ResolveAddresses(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var lines []string

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			body, err := m.scrape(gctx, addr)
			if err != nil {
				m.logger.Warn("telemetry: skipping metrics address after scrape failure", "address", addr, "error", err)
				return nil
			}
			mu.Lock()
			lines = append(lines, strings.Split(body, "\n")...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (m *MetricsService) scrape(ctx context.Context, addr string) (string, error) {
	url := fmt.Sprintf("http://%s:%s/metrics", addr, metricsPort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
