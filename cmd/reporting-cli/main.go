package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gridpulse/reporting-client/internal/config"
	"github.com/gridpulse/reporting-client/pkg/metric"
	"github.com/gridpulse/reporting-client/pkg/reporting"
)

// Command reporting-cli queries time-series telemetry for a microgrid
// component from the GridPulse reporting service.
//
// Usage:
//
//	reporting-cli -mid 1 -cid 100 -metrics AC_ACTIVE_POWER \
//	    -start 2024-05-01T00:00:00Z -end 2024-05-02T00:00:00Z [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (optional; REPORTING_* env vars apply too)
//	-url string
//	      reporting service address (overrides config)
//	-key string
//	      API key (overrides config)
//	-mid / -cid
//	      microgrid and component ID (required)
//	-metrics string
//	      comma-separated metric names, e.g. AC_ACTIVE_POWER,DC_POWER
//	-start / -end
//	      time range in RFC 3339, end exclusive
//	-resampling-period duration
//	      server-side aggregation interval, e.g. 15m (0 = raw samples)
//	-states / -bounds
//	      include state and bound data
//	-page-size int
//	      records per page (overrides config)
//	-format string
//	      output format: iter, csv, or json (default "csv")
func main() {
	args := parseFlags()

	appConfig, err := config.Load(args.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if args.URL != "" {
		appConfig.Service.URL = args.URL
	}
	if args.Key != "" {
		appConfig.Service.APIKey = args.Key
	}
	if args.PageSize > 0 {
		appConfig.Query.PageSize = args.PageSize
	}

	logger := newLogger(appConfig.Logging)

	metrics, err := parseMetrics(args.Metrics)
	if err != nil {
		logger.Fatalf("Invalid metrics: %v", err)
	}
	start, err := parseTime(args.Start)
	if err != nil {
		logger.Fatalf("Invalid start time: %v", err)
	}
	end, err := parseTime(args.End)
	if err != nil {
		logger.Fatalf("Invalid end time: %v", err)
	}

	// Cancel the query on SIGINT/SIGTERM so in-flight pages are aborted.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel, logger)

	client, err := reporting.NewClient(reporting.Config{
		ServerURL:          appConfig.Service.URL,
		APIKey:             appConfig.Service.APIKey,
		PageSize:           uint32(appConfig.Query.PageSize),
		MaxEntitiesPerCall: appConfig.Query.MaxEntitiesPerCall,
		MaxMetricsPerCall:  appConfig.Query.MaxMetricsPerCall,
		PageTimeout:        appConfig.Service.PageTimeout,
		RateLimit:          appConfig.Service.RateLimit,
		RateLimitBurst:     appConfig.Service.RateLimitBurst,
		ConnPoolSize:       appConfig.Service.ConnPoolSize,
		MaxRetries:         appConfig.Retry.MaxAttempts,
		InitialBackoff:     appConfig.Retry.InitialBackoff,
		MaxBackoff:         appConfig.Retry.MaxBackoff,
		BackoffMultiplier:  appConfig.Retry.BackoffMultiplier,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	samples, err := client.ListSingleComponentData(ctx, reporting.SingleComponentQuery{
		MicrogridID:      args.MicrogridID,
		ComponentID:      args.ComponentID,
		Metrics:          metrics,
		Start:            start,
		End:              end,
		ResamplingPeriod: args.ResamplingPeriod,
		IncludeStates:    args.States,
		IncludeBounds:    args.Bounds,
	})
	if err != nil {
		logger.Fatalf("Query failed: %v", err)
	}
	defer samples.Close()

	switch args.Format {
	case "iter":
		printIter(samples)
	case "csv":
		if err := printCSV(samples); err != nil {
			logger.Fatalf("CSV output failed: %v", err)
		}
	case "json":
		if err := printJSON(samples); err != nil {
			logger.Fatalf("JSON output failed: %v", err)
		}
	default:
		logger.Fatalf("Invalid output format: %s", args.Format)
	}

	if err := samples.Err(); err != nil {
		logger.Fatalf("Query failed: %v", err)
	}
}

type cliArgs struct {
	ConfigPath       string
	URL              string
	Key              string
	MicrogridID      uint64
	ComponentID      uint64
	Metrics          string
	Start            string
	End              string
	ResamplingPeriod time.Duration
	States           bool
	Bounds           bool
	PageSize         int
	Format           string
}

func parseFlags() *cliArgs {
	args := &cliArgs{}

	flag.StringVar(&args.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&args.URL, "url", "", "Reporting service address")
	flag.StringVar(&args.Key, "key", "", "API key")
	flag.Uint64Var(&args.MicrogridID, "mid", 0, "Microgrid ID")
	flag.Uint64Var(&args.ComponentID, "cid", 0, "Component ID")
	flag.StringVar(&args.Metrics, "metrics", "", "Comma-separated metric names")
	flag.StringVar(&args.Start, "start", "", "Start time (RFC 3339)")
	flag.StringVar(&args.End, "end", "", "End time (RFC 3339, exclusive)")
	flag.DurationVar(&args.ResamplingPeriod, "resampling-period", 0, "Server-side resampling period")
	flag.BoolVar(&args.States, "states", false, "Include state data")
	flag.BoolVar(&args.Bounds, "bounds", false, "Include bound data")
	flag.IntVar(&args.PageSize, "page-size", 0, "Records per page")
	flag.StringVar(&args.Format, "format", "csv", "Output format: iter, csv, or json")

	flag.Parse()

	return args
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func parseMetrics(s string) ([]metric.Metric, error) {
	var metrics []metric.Metric
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		m, err := metric.Parse(name)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

func handleSignals(cancel context.CancelFunc, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Printf("Received signal %v, canceling query", sig)
	cancel()
}

func printIter(samples *reporting.Samples) {
	for samples.Next() {
		s := samples.Sample()
		fmt.Printf("%+v\n", s)
	}
}

func printCSV(samples *reporting.Samples) error {
	w := csv.NewWriter(os.Stdout)
	if err := w.Write([]string{"timestamp", "microgrid_id", "component_id", "metric", "value"}); err != nil {
		return err
	}
	for samples.Next() {
		s := samples.Sample()
		value := ""
		if s.Value != nil {
			value = strconv.FormatFloat(*s.Value, 'g', -1, 64)
		}
		if err := w.Write([]string{
			s.Timestamp.Format(time.RFC3339Nano),
			strconv.FormatUint(s.MicrogridID, 10),
			strconv.FormatUint(s.ComponentID, 10),
			s.Metric.String(),
			value,
		}); err != nil {
			return err
		}
		// Flush per row so output streams as samples arrive.
		w.Flush()
	}
	w.Flush()
	return w.Error()
}

// printJSON aggregates all samples into a microgrid→component→timestamp→
// metric nesting before writing, so it holds the full result in memory.
func printJSON(samples *reporting.Samples) error {
	out := map[uint64]map[uint64]map[string]map[string]*float64{}
	for samples.Next() {
		s := samples.Sample()
		byComponent, ok := out[s.MicrogridID]
		if !ok {
			byComponent = map[uint64]map[string]map[string]*float64{}
			out[s.MicrogridID] = byComponent
		}
		byTime, ok := byComponent[s.ComponentID]
		if !ok {
			byTime = map[string]map[string]*float64{}
			byComponent[s.ComponentID] = byTime
		}
		ts := s.Timestamp.Format(time.RFC3339Nano)
		byMetric, ok := byTime[ts]
		if !ok {
			byMetric = map[string]*float64{}
			byTime[ts] = byMetric
		}
		byMetric[s.Metric.String()] = s.Value
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
