package waycache

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	blocklist "github.com/waycache/waycache/pkg/block-list"
	cachepath "github.com/waycache/waycache/pkg/cache-path"
	snapshotstore "github.com/waycache/waycache/pkg/snapshot-store"
	virtualclock "github.com/waycache/waycache/pkg/virtual-clock"
)

const (
	DefaultArchiveURL   = "https://web.archive.org/web"
	DefaultUserAgent    = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_6_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Mobile/15E148 Safari/604.1 Ddg/17.6"
	DefaultRequestDelay = time.Second
	DefaultMaxRetries   = 8
)

// notFoundMessage is the only thing a client ever learns about a
// failure: no internal errors leak past the boundary.
const notFoundMessage = "Error: This page could not be loaded. It may have been removed from the archive or is not available at this time."

type Config struct {
	// Virtual date source.
	Clock *virtualclock.Clock
	// Snapshot tree and index.
	Store *snapshotstore.Store
	// URLs the archive answered non-200 for; never fetched again.
	ErrorList *blocklist.List
	// URL prefixes never served nor fetched at all.
	AdList *blocklist.List
	// Base URL of the archive, without trailing slash.
	ArchiveURL string
	// User-Agent sent on every archive request.
	UserAgent string
	// Minimum spacing between outbound archive requests.
	RequestDelay time.Duration
	// Cap on retries of a failing archive request.
	MaxRetries int
	// Enable the set_timestamp admin route.
	AllowTimeChange bool
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Waycache serves web resources as they existed at the virtual date,
// filling cache misses from the archive. It implements http.Handler
// for the catch-all proxy route; Handler returns the full surface
// including the admin route.
type Waycache struct {
	clock           *virtualclock.Clock
	store           *snapshotstore.Store
	adList          *blocklist.List
	fetcher         *Fetcher
	allowTimeChange bool
	log             zerolog.Logger
}

// New wires up the service instance. All mutable state (blocklists,
// the fetch lock, the rate limiter) lives on the returned object.
func New(config Config) *Waycache {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	archiveURL := config.ArchiveURL
	if archiveURL == "" {
		archiveURL = DefaultArchiveURL
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	requestDelay := config.RequestDelay
	if requestDelay <= 0 {
		requestDelay = DefaultRequestDelay
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	logger = logger.With().
		Str("archive", archiveURL).
		Logger()

	return &Waycache{
		clock:           config.Clock,
		store:           config.Store,
		adList:          config.AdList,
		allowTimeChange: config.AllowTimeChange,
		log:             logger,
		fetcher: &Fetcher{
			client:     &http.Client{},
			clock:      config.Clock,
			store:      config.Store,
			errorList:  config.ErrorList,
			limiter:    rate.NewLimiter(rate.Every(requestDelay), 1),
			archiveURL: strings.TrimSuffix(archiveURL, "/"),
			userAgent:  userAgent,
			maxRetries: uint64(maxRetries),
			log:        logger,
		},
	}
}

// Handler returns the full HTTP surface: the admin route plus the
// catch-all proxy route.
func (wc *Waycache) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/set_timestamp", wc.handleSetTimestamp)
	r.Handle("/*", wc)
	return r
}

// ServeHTTP implements the http.Handler interface for the catch-all
// proxy route. The requested URL travels in the request path.
func (wc *Waycache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/favicon.ico" {
		w.WriteHeader(http.StatusOK)
		return
	}

	target := canonicalURL(r.URL.Path)
	canonical := target
	if r.URL.RawQuery != "" {
		canonical += "?" + r.URL.RawQuery
	}
	log := wc.log.With().Str("url", canonical).Logger()

	// blocked prefixes never touch the cache tree or the network
	if wc.adList.MatchesPrefix(canonical) {
		log.Debug().Msg("Blocked by ad list")
		http.Error(w, notFoundMessage, http.StatusNotFound)
		return
	}

	accept := acceptedType(r.Header.Get("Accept"))
	cp, err := cachepath.Resolve(target, r.URL.RawQuery, accept)
	if err != nil {
		log.Debug().Err(err).Msg("Could not resolve cache path")
		http.Error(w, "Invalid URL", http.StatusBadRequest)
		return
	}

	date := wc.store.ResolveDate(cp.FilePath, wc.clock.Date())

	body, err := wc.fetcher.Fetch(r.Context(), cp, date, canonical)
	if errors.Is(err, ErrGone) {
		log.Debug().Msg("Resource permanently unavailable")
		http.Error(w, notFoundMessage, http.StatusNotFound)
		return
	} else if err != nil {
		log.Error().Err(err).Msg("Could not fetch resource")
		http.Error(w, notFoundMessage, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", responseContentType(cp, accept))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("Could not write response body to client")
	}
	log.Debug().
		Str("kind", string(cp.Kind)).
		Time("snapshot", date).
		Int("bytes", len(body)).
		Msg("Sending response to client")
}

func (wc *Waycache) handleSetTimestamp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	baseDate, err := strconv.Atoi(r.URL.Query().Get("timestamp"))
	if !wc.allowTimeChange || err != nil {
		io.WriteString(w, `{"success": false}`)
		return
	}
	wc.clock.SetBaseDate(baseDate)
	wc.log.Info().Int("baseDate", baseDate).Msg("Base date changed")
	io.WriteString(w, `{"success": true}`)
}

// canonicalURL rebuilds the absolute target URL from the proxied
// request path. Scheme separators collapse to a single slash on the
// way through routers, so both forms are stripped before prefixing
// plain http.
func canonicalURL(path string) string {
	path = strings.TrimPrefix(path, "/")
	for _, prefix := range []string{"http://", "http:/", "https://", "https:/"} {
		path = strings.TrimPrefix(path, prefix)
	}
	for strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	return "http://" + path
}

// acceptedType picks the first media type out of an Accept header.
func acceptedType(header string) string {
	if header == "" {
		return "text/html"
	}
	first, _, _ := strings.Cut(header, ",")
	mediaType, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(mediaType)
}

// responseContentType fixes up the Content-Type for assets requested
// by browsers that still say text/html (images referenced from pages,
// stylesheets and the like).
func responseContentType(cp cachepath.CachePath, accept string) string {
	if accept == "text/html" {
		switch cp.Kind {
		case cachepath.KindImage:
			return "image/" + cp.Ext
		case cachepath.KindCSS:
			return "text/css"
		}
	}
	return accept
}
