// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package datasource holds the HTTP fetcher shared by the feed sources.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
)

const (
	defaultRetries         = 3
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxSize         = 50 * 1024 * 1024 // 50 MB
)

// Fetcher downloads a URL, retrying transient failures with exponential
// backoff. Client errors (4xx) are not retried.
type Fetcher struct {
	Client          *http.Client
	Retries         uint64
	InitialInterval time.Duration
	MaxSize         int64

	logger zerolog.Logger
}

// NewFetcher creates a Fetcher with a 60 second timeout and three retries.
func NewFetcher(logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		Client:          &http.Client{Timeout: 60 * time.Second},
		Retries:         defaultRetries,
		InitialInterval: defaultInitialInterval,
		MaxSize:         defaultMaxSize,
		logger:          logger,
	}
}

// Fetch returns the body of url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.InitialInterval
	bo.MaxElapsedTime = 2 * time.Minute

	var data []byte
	err := backoff.RetryNotify(func() error {
		var err error
		data, err = f.fetchOnce(ctx, url)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, f.Retries), ctx), func(err error, wait time.Duration) {
		f.logger.Warn().Err(err).Str("url", url).Dur("retry_in", wait).Msg("download failed, retrying")
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request: %w", err))
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(data)) > f.MaxSize {
		return nil, backoff.Permanent(fmt.Errorf("response from %s exceeds %d bytes", url, f.MaxSize))
	}
	return data, nil
}
