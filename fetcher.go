package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

const defaultMaxBodyBytes = 16 << 20

type VehicleFeedSource interface {
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// endpointFeedSource is a single upstream URL for one region.
type endpointFeedSource struct {
	region     string
	url        string
	decode     feedDecoder
	httpClient *http.Client
	maxBody    int64
}

func (s *endpointFeedSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", s.maxBody)
	}
	records, err := s.decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	for i := range records {
		records[i].Region = s.region
	}
	return records, nil
}

// Fetcher polls every configured endpoint once per cycle.
type Fetcher struct {
	sources     []*endpointFeedSource
	concurrency int
	log         logrus.FieldLogger
}

func NewFetcher(cfg FeedConfig, log logrus.FieldLogger) (*Fetcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	f := &Fetcher{concurrency: cfg.Concurrency, log: log}
	if f.concurrency <= 0 {
		f.concurrency = 1
	}
	for _, src := range cfg.Sources {
		format := src.Format
		if format == "" {
			format = formatGTFSRT
		}
		decode, ok := decoders[format]
		if !ok {
			return nil, fmt.Errorf("region %q: unknown feed format %q", src.Region, format)
		}
		for _, ep := range src.Endpoints {
			f.sources = append(f.sources, &endpointFeedSource{
				region:     src.Region,
				url:        cfg.BaseURL + ep,
				decode:     decode,
				httpClient: client,
				maxBody:    maxBody,
			})
		}
	}
	return f, nil
}

// FetchAll returns the candidates from every endpoint that answered. Failing
// endpoints are logged and contribute nothing.
func (f *Fetcher) FetchAll(ctx context.Context) []RawRecord {
	p := pool.NewWithResults[[]RawRecord]().WithMaxGoroutines(f.concurrency)
	for _, src := range f.sources {
		src := src
		p.Go(func() []RawRecord {
			records, err := src.Fetch(ctx)
			if err != nil {
				f.log.WithFields(logrus.Fields{
					"region": src.region,
					"url":    src.url,
				}).WithError(err).Warn("feed fetch failed")
				return nil
			}
			f.log.WithFields(logrus.Fields{
				"region":  src.region,
				"records": len(records),
			}).Debug("feed fetched")
			return records
		})
	}

	var all []RawRecord
	for _, records := range p.Wait() {
		all = append(all, records...)
	}
	return all
}
