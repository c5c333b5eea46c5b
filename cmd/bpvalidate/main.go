// Command bpvalidate runs the block producer validation engine: either
// as a long-lived service exposing health and metrics endpoints, or as
// a one-shot batch run over a list of declared BP submissions.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/poplexity/bpvalidate/core/pkg/apitest"
	"github.com/poplexity/bpvalidate/core/pkg/bpconfig"
	"github.com/poplexity/bpvalidate/core/pkg/bpjson"
	"github.com/poplexity/bpvalidate/core/pkg/bpmetrics"
	"github.com/poplexity/bpvalidate/core/pkg/chainprofile"
	"github.com/poplexity/bpvalidate/core/pkg/chainrpc"
	"github.com/poplexity/bpvalidate/core/pkg/dedupe"
	"github.com/poplexity/bpvalidate/core/pkg/extprobe"
	"github.com/poplexity/bpvalidate/core/pkg/httpprobe"
	"github.com/poplexity/bpvalidate/core/pkg/nodeprobe"
	"github.com/poplexity/bpvalidate/core/pkg/obslog"
	"github.com/poplexity/bpvalidate/core/pkg/outputdoc"
	"github.com/poplexity/bpvalidate/core/pkg/probecache"
	"github.com/poplexity/bpvalidate/core/pkg/resolver"
	"github.com/poplexity/bpvalidate/core/pkg/tlsscan"
	"github.com/poplexity/bpvalidate/core/pkg/urlvalidate"
	"github.com/poplexity/bpvalidate/core/pkg/validator"
	"github.com/poplexity/bpvalidate/core/pkg/whois"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable so tests can stub it out without binding a
// real listener.
var startServer = runServer

// Run is the entry point for testing: it never calls os.Exit itself.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer()
		return 0
	}

	switch args[1] {
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "serve":
		startServer()
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stdout, "unknown command %q, defaulting to server\n", args[1])
		startServer()
		return 0
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: bpvalidate <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  serve     Run health and metrics endpoints (default)")
	fmt.Fprintln(w, "  validate  Validate a JSON list of BP submissions and print the reports")
}

// bpEntry is one line of the batch-run input file.
type bpEntry struct {
	Account       string    `json:"account"`
	ProducerKey   string    `json:"producer_key"`
	Homepage      string    `json:"homepage"`
	ChainsJSON    string    `json:"chains_json"`
	BPJSONURL     string    `json:"bpjson_url"`
	IsActive      bool      `json:"is_active"`
	UnpaidBlocks  uint32    `json:"unpaid_blocks"`
	LastClaimTime time.Time `json:"last_claim_time"`
	Location      int       `json:"location"`
	AlohaID       string    `json:"aloha_id"`
}

func runValidate(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "validate: a path to a BP list JSON file is required")
		return 1
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "validate: reading %s: %v\n", args[0], err)
		return 1
	}
	var entries []bpEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		fmt.Fprintf(stderr, "validate: parsing %s: %v\n", args[0], err)
		return 1
	}

	cfg := bpconfig.Load()
	obs := obslog.New(obslog.Config{
		ServiceName: "bpvalidate", ServiceVersion: "dev", LogLevel: cfg.LogLevel, SampleRate: 1.0,
	})
	defer obs.Shutdown(context.Background())

	engine, _, closeDB := buildEngine(cfg, obs.Logger)
	if closeDB != nil {
		defer closeDB()
	}

	metrics := bpmetrics.New(prometheus.NewRegistry())

	reports := make([]*validator.Report, 0, len(entries))
	for _, e := range entries {
		started := time.Now()
		report := engine.Validate(context.Background(), validator.BP{
			Account:       e.Account,
			ProducerKey:   e.ProducerKey,
			Homepage:      e.Homepage,
			ChainsJSON:    e.ChainsJSON,
			BPJSONURL:     e.BPJSONURL,
			IsActive:      e.IsActive,
			UnpaidBlocks:  e.UnpaidBlocks,
			LastClaimTime: e.LastClaimTime,
			Location:      e.Location,
			AlohaID:       e.AlohaID,
		})
		reports = append(reports, report)

		for class, kind := range report.Summary {
			metrics.ObserveFinding(string(class), string(kind))
		}
		metrics.ObserveProbe("run", "completed", time.Since(started).Seconds())
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		fmt.Fprintf(stderr, "validate: encoding reports: %v\n", err)
		return 1
	}
	return 0
}

func runServer() {
	slog.Info("bpvalidate starting")
	cfg := bpconfig.Load()
	obs := obslog.New(obslog.Config{
		ServiceName: "bpvalidate", ServiceVersion: "dev", LogLevel: cfg.LogLevel, SampleRate: 1.0,
	})
	defer obs.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	bpmetrics.New(reg)

	_, _, closeDB := buildEngine(cfg, obs.Logger)
	if closeDB != nil {
		defer closeDB()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	instrumented := logRequests(obs.Logger, mux)

	srv := &http.Server{Addr: ":" + cfg.HealthPort, Handler: instrumented}
	go func() {
		obs.Logger.Info("health server listening", "port", cfg.HealthPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("health server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	obs.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// logRequests wraps h with a structured access log, capturing the
// status code and duration httpsnoop observes from the underlying
// http.ResponseWriter without the handler needing to cooperate.
func logRequests(logger *slog.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(h, w, r)
		logger.Info("request",
			"method", r.Method, "path", r.URL.Path,
			"status", m.Code, "duration", m.Duration, "bytes", m.Written,
		)
	})
}

// buildEngine wires a validator.Engine from configuration, following
// the same "connect to storage, then build collaborators bottom-up"
// order as the wiring this module's health server was adapted from.
// The returned closeDB is nil when no database connection was made.
func buildEngine(cfg *bpconfig.Config, logger *slog.Logger) (*validator.Engine, *probecache.Store, func()) {
	var cache *probecache.Store
	var closeDB func()

	if db, err := sql.Open("postgres", cfg.DatabaseURL); err == nil {
		if pingErr := db.PingContext(context.Background()); pingErr == nil {
			store := probecache.New(db)
			if initErr := store.Init(context.Background()); initErr == nil {
				cache = store
				closeDB = func() { _ = db.Close() }
			} else {
				logger.Warn("cache store init failed, running uncached", "error", initErr)
				_ = db.Close()
			}
		} else {
			logger.Warn("database unreachable, running uncached", "error", pingErr)
			_ = db.Close()
		}
	} else {
		logger.Warn("database connection failed, running uncached", "error", err)
	}

	whoisClient := whois.New(cache)
	res := resolver.New(whoisClient)
	tlsProber := tlsscan.New(cache)
	httpClient := httpprobe.New(cache)
	httpClient.HTTP.Timeout = time.Duration(cfg.RequestTimeoutSec * float64(time.Second))

	urls := urlvalidate.New(httpClient, res, tlsProber, dedupe.New(), outputdoc.New())

	var profile *chainprofile.Profile
	if cfg.ChainProfilePath != "" {
		profiles, err := chainprofile.LoadProfiles(cfg.ChainProfilePath)
		if err != nil {
			logger.Warn("chain profile load failed, falling back to the built-in default", "error", err)
			profile = chainprofile.Default()
		} else if len(profiles) == 0 {
			profile = chainprofile.Default()
		} else {
			for _, p := range profiles {
				profile = p
				break
			}
		}
	} else {
		profile = chainprofile.Default()
	}

	nodes := nodeprobe.New(urls, extprobe.NewP2PSpeedTester(), cfg.ChainURL)
	api := apitest.New(httpClient, extprobe.NewHTTP2Detector(), profile)

	var mx bpjson.MXResolver
	if cfg.MXServer != "" {
		mx = bpjson.NewMXResolver(cfg.MXServer)
	}

	engine := validator.New(urls, bpjson.NewSchema(), mx, nodes, api, profile)

	if cfg.ChainURL != "" {
		rpc := chainrpc.New(httpClient, cfg.ChainURL, profile)
		engine.ChainReconcile = rpc
		engine.RegproducerChain = rpc
	}
	engine.Logger = logger

	return engine, cache, closeDB
}
