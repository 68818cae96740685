package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/waycache/waycache"
	blocklist "github.com/waycache/waycache/pkg/block-list"
	snapshotstore "github.com/waycache/waycache/pkg/snapshot-store"
	virtualclock "github.com/waycache/waycache/pkg/virtual-clock"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	baseDateFlag       int
	daySyncFlag        bool
	cacheDirFlag       string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.IntVar(&baseDateFlag, "date", 0, "Virtual base date as YYYYMMDD (overrides config)")
	flag.BoolVar(&daySyncFlag, "day-sync", false, "Sync month and day to the wall clock, pinning the year")
	flag.StringVar(&cacheDirFlag, "cache-dir", "", "Cache directory (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	config := waycache.DefaultFileConfig()
	if configFilenameFlag != "" {
		var err error
		config, err = waycache.LoadConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot read config file")
		}
	}
	if portFlag != 0 {
		config.Port = portFlag
	}
	if baseDateFlag != 0 {
		config.BaseDate = baseDateFlag
	}
	if daySyncFlag {
		config.DaySync = true
	}
	if cacheDirFlag != "" {
		config.CacheDir = cacheDirFlag
	}

	errorList, err := blocklist.Load(config.ErrorListFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load error list")
	}
	adList, err := blocklist.Load(config.AdListFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load ad list")
	}
	store, err := snapshotstore.New(config.CacheDir, config.CacheWindowDays, config.IndexFile, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot open snapshot store")
	}
	clock := virtualclock.New(config.BaseDate, config.DaySync)

	wc := waycache.New(waycache.Config{
		Clock:           clock,
		Store:           store,
		ErrorList:       errorList,
		AdList:          adList,
		ArchiveURL:      config.ArchiveURL,
		UserAgent:       config.UserAgent,
		RequestDelay:    time.Duration(config.RequestDelayMs) * time.Millisecond,
		MaxRetries:      config.MaxRetries,
		AllowTimeChange: config.AllowTimeChange,
		Logger:          &log.Logger,
	})

	log.Info().
		Int("port", config.Port).
		Str("virtualDate", clock.QueryTimestamp()).
		Int("errorListEntries", errorList.Len()).
		Int("adListEntries", adList.Len()).
		Msg("Serving the past")
	err = http.ListenAndServe(fmt.Sprintf(":%d", config.Port), wc.Handler())

	if err != nil {
		panic(err)
	}
}
