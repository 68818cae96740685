package waycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	blocklist "github.com/waycache/waycache/pkg/block-list"
	cachepath "github.com/waycache/waycache/pkg/cache-path"
	snapshotstore "github.com/waycache/waycache/pkg/snapshot-store"
	virtualclock "github.com/waycache/waycache/pkg/virtual-clock"
)

// ErrGone marks a resource the archive cannot serve: either the URL is
// already on the permanent-failure list, or the archive just answered
// non-200 and the URL was added to it.
var ErrGone = errors.New("resource permanently unavailable")

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Fetcher retrieves resources from the archive and persists them as
// snapshots. All outbound traffic is serialized behind one mutex and
// paced by one rate limiter, whichever URL it is for. Requests
// answerable from disk or from the permanent-failure list never touch
// either.
type Fetcher struct {
	client     *http.Client
	clock      *virtualclock.Clock
	store      *snapshotstore.Store
	errorList  *blocklist.List
	limiter    *rate.Limiter
	group      singleflight.Group
	fetchLock  sync.Mutex
	archiveURL string
	userAgent  string
	maxRetries uint64
	log        zerolog.Logger
}

// Fetch returns the bytes for cp under the given snapshot date,
// fetching from the archive and persisting first if needed. HTML is
// rewritten before it is stored. Concurrent calls for the same
// snapshot file are coalesced into one fetch.
func (f *Fetcher) Fetch(ctx context.Context, cp cachepath.CachePath, date time.Time, canonicalURL string) ([]byte, error) {
	if f.errorList.Contains(canonicalURL) {
		return nil, ErrGone
	}
	if data, err := f.store.Read(date, cp.FilePath); err == nil {
		return data, nil
	}
	v, err, _ := f.group.Do(f.store.FilePath(date, cp.FilePath), func() (interface{}, error) {
		return f.fetchAndPersist(ctx, cp, date, canonicalURL)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *Fetcher) fetchAndPersist(ctx context.Context, cp cachepath.CachePath, date time.Time, canonicalURL string) ([]byte, error) {
	f.fetchLock.Lock()
	defer f.fetchLock.Unlock()

	// another request may have filled the snapshot while we waited
	if data, err := f.store.Read(date, cp.FilePath); err == nil {
		return data, nil
	}

	requestURL := fmt.Sprintf("%s/%sid_/%s", f.archiveURL, f.clock.QueryTimestamp(), canonicalURL)
	log := f.log.With().Str("url", requestURL).Logger()
	log.Info().Msg("Fetching from archive")

	var body []byte
	var status int
	attempt := func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		res, err := f.client.Do(req)
		if err != nil {
			log.Warn().Err(err).Msg("Archive request failed, will retry")
			return err
		}
		defer res.Body.Close()
		status = res.StatusCode
		if status != http.StatusOK {
			// non-200 is a permanent failure, not worth a retry
			return nil
		}
		body, err = io.ReadAll(res.Body)
		if err != nil {
			log.Warn().Err(err).Msg("Could not read archive response, will retry")
			return err
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, fmt.Errorf("archive unreachable: %w", err)
	}

	if status != http.StatusOK {
		log.Debug().Int("status", status).Msg("Archive answered non-200, memoizing failure")
		if err := f.errorList.Add(canonicalURL); err != nil {
			log.Error().Err(err).Msg("Could not record permanent failure")
		}
		return nil, ErrGone
	}

	if cp.Kind == cachepath.KindHTML {
		body = rewriteHTML(body)
	}
	if err := f.store.Write(date, cp.FilePath, body); err != nil {
		return nil, err
	}
	log.Debug().Int("bytes", len(body)).Msg("Snapshot persisted")
	return body, nil
}

// rewriteHTML downgrades https links to plain http so pages served
// from the plain-http proxy do not trip mixed-content blocking, and
// drops a leading UTF-8 byte order mark.
func rewriteHTML(body []byte) []byte {
	body = bytes.ReplaceAll(body, []byte("https://"), []byte("http://"))
	return bytes.TrimPrefix(body, utf8BOM)
}
