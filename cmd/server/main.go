// Sift enriches raw security logs into risk-scored alerts for SOC analysts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/prof"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/health"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/otelx"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/sift/internal/authmw"
	sc "github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/collab"
	"github.com/linnemanlabs/sift/internal/enrich"
	"github.com/linnemanlabs/sift/internal/enrichapi"
	"github.com/linnemanlabs/sift/internal/intent"
	"github.com/linnemanlabs/sift/internal/llm/claude"
	"github.com/linnemanlabs/sift/internal/notify/slack"
	"github.com/linnemanlabs/sift/internal/rules"
)

const appName = "sift"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set app name and component
	v.AppName = appName
	v.Component = component

	// Get build/version info
	vi := v.Get()

	// each package registers its own flags and options struct
	var (
		appCfg    sc.Config
		httpCfg   httpserver.Config
		httpmwCfg httpmw.Config
		logCfg    log.Config
		opsCfg    opshttp.Config
		profCfg   prof.Config
		traceCfg  otelx.Config
	)

	// register flags for each package, which will be parsed into the shared config struct
	appCfg.RegisterFlags(flag.CommandLine)
	httpCfg.RegisterFlags(flag.CommandLine)
	httpmwCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	opsCfg.RegisterFlags(flag.CommandLine)
	profCfg.RegisterFlags(flag.CommandLine)
	traceCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	// parse flags to get config values from cmdline, we check env vars next which do not override cmdline flags
	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// Fill in config values from environment variables with prefix SIFT_,
	// these do not override cmdline flags
	cfg.FillFromEnv(flag.CommandLine, "SIFT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(
		appCfg.Validate(),
		httpCfg.Validate(),
		httpmwCfg.Validate(),
		logCfg.Validate(),
		opsCfg.Validate(),
		profCfg.Validate(),
		traceCfg.Validate(),
	); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// cross-cutting checks that only main can validate
	if appCfg.APIPort == opsCfg.Port {
		return fmt.Errorf("http and admin ports must differ (both %d)", appCfg.APIPort)
	}

	// initialize logger early
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer func() { _ = lg.Sync() }()

	// create a logger with component field pre-filled for structured logging in this package
	L := lg.With("component", vi.Component)

	// add logger to context
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", appCfg.APIPort,
		"admin_port", opsCfg.Port,
		"rules_dir", appCfg.RulesDir,
		"ingestion_endpoint", appCfg.IngestionEndpoint,
		"semantic_endpoint", appCfg.SemanticEndpoint,
		"technique_endpoint", appCfg.TechniqueEndpoint,
		"collaborator_timeout_seconds", appCfg.CollabTimeoutSecs,
		"intent_confidence_threshold", appCfg.IntentConfidenceThreshold,
		"intent_fallback_enabled", appCfg.IntentFallbackEnabled,
		"enable_pprof", opsCfg.EnablePprof,
		"enable_pyroscope", profCfg.EnablePyroscope,
		"enable_tracing", traceCfg.EnableTracing,
	)

	// Setup pyroscope profiling early so we get profiles from the entire app lifetime
	profOpts := profCfg.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
		"source":    "lmlabs-go-agent",
	}
	// Start profiling, returns a stop function to call for clean shutdown (flush buffers, etc)
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", profCfg.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	// Setup otel for tracing
	traceOpts := traceCfg.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version

	// Start otel, returns a shutdown function to call for clean shutdown (flush buffers, etc)
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if shutdownOtelx != nil {
		defer func() { _ = shutdownOtelx(context.Background()) }()
	}

	// Setup metrics, we use our own metrics package for internal instrumentation
	var m = metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetProfilingActive(profErr == nil && profCfg.EnablePyroscope)

	// Pipeline metrics on the shared Prometheus registry.
	enrichMetrics := enrich.NewMetrics(m.Registry())

	// Load the rule set and publish the first snapshot. A startup with
	// zero rules is legal (the classifier just always falls back), so
	// only a broken rules dir is fatal.
	loaded, err := rules.Load(ctx, appCfg.RulesDir, L)
	if err != nil {
		return fmt.Errorf("rules load: %w", err)
	}
	ruleStore := rules.NewStore(loaded)
	enrichMetrics.RulesLoaded.Set(float64(ruleStore.Len()))

	// SIGHUP reloads the rule set via atomic snapshot swap; in-flight
	// requests keep scoring against the snapshot they started with.
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			reloaded, err := rules.Load(ctx, appCfg.RulesDir, L)
			if err != nil {
				L.Error(ctx, err, "rule reload failed, keeping current snapshot")
				continue
			}
			ruleStore.Replace(reloaded)
			enrichMetrics.RulesLoaded.Set(float64(ruleStore.Len()))
			L.Info(ctx, "rule snapshot replaced", "count", ruleStore.Len())
		}
	}()
	defer signal.Stop(hupCh)

	// Collaborator clients share the configured per-call timeout.
	callTimeout := time.Duration(appCfg.CollabTimeoutSecs) * time.Second
	ingestion := collab.NewIngestionClient(appCfg.IngestionEndpoint, callTimeout)
	semantic := collab.NewSemanticClient(appCfg.SemanticEndpoint, callTimeout)
	technique := collab.NewTechniqueClient(appCfg.TechniqueEndpoint, callTimeout)
	L.Info(ctx, "initialized collaborator clients", "timeout", callTimeout)

	// External reasoner, consulted only when rule confidence is low.
	var reasoner intent.Reasoner
	if appCfg.IntentFallbackEnabled {
		reasoner = claude.New(appCfg.ClaudeAPIKey, appCfg.ClaudeModel)
		L.Info(ctx, "initialized external reasoner", "provider", "claude", "model", appCfg.ClaudeModel)
	} else {
		L.Info(ctx, "external reasoner fallback disabled")
	}

	classifier := intent.NewClassifier(
		ruleStore,
		reasoner,
		appCfg.IntentConfidenceThreshold,
		appCfg.IntentFallbackEnabled,
		L,
		intent.Hooks{OnFallback: enrichMetrics.OnFallback},
	)

	// Slack notifier for high/critical alerts.
	var notifier enrich.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifier = slack.New(appCfg.SlackWebhookURL)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	// The enrichment pipeline itself.
	pipeline := enrich.NewPipeline(ingestion, semantic, classifier, technique, callTimeout, L, enrichMetrics.Hooks(), notifier)

	// setup toggle for server shutdown. this is used to fail readiness checks
	// during shutdown to drain connections from load balancer before killing the process.
	var shutdownGate health.ShutdownGate

	// setup readiness checks, currently just the shutdown gate
	readiness := health.All(
		shutdownGate.Probe(),
	)
	// liveness is always true if the app is able to respond
	liveness := health.Fixed(true, "")

	// Configure ops http server for metrics, health checks, pprof, etc
	opsOpts := opsCfg.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// start admin/ops listener. sg restricts inbound to internal monitoring infrastructure.
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() {
		err := opsHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop ops http listener")
		}
	}()

	// setup main api chi router and middleware stack
	r := chi.NewRouter()

	// Compress text responses (we are JSON only for now)
	r.Use(middleware.Compress(5, "application/json"))

	// Annotate logger (and tracer if trace is recording) with http.route from chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// Access log middleware
	r.Use(httpmw.AccessLog())

	// Limit request body size, this is a wrapper around http.MaxBytesHandler which returns 413 if limit is exceeded
	r.Use(httpmw.MaxBody(1024 * 256)) // raw logs can be chunky, 256KB covers multi-line windows events

	// add health check endpoints to main listener
	r.Get("/-/healthy", health.HealthzHandler(liveness))
	r.Get("/-/ready", health.ReadyzHandler(readiness))

	// register api routes, behind bearer auth when a token is configured
	api := enrichapi.New(L, pipeline)
	if appCfg.APIToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(authmw.BearerToken(appCfg.APIToken))
			api.RegisterRoutes(r)
		})
	} else {
		api.RegisterRoutes(r)
	}

	// middleware stack for main listener, order matters these are wrappers, outermost sees raw request
	// first and is last to see response, innermost is last to see request and first to see response but
	// has access to the full rich context from outer middleware and handlers
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, chi route, etc)
	h = httpmw.WithLogger(L)(h)

	// add trace-id and span-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// otel instrumentation for automatic spans and trace context propagation
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// dont trace health/readiness checks
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute will rename the span later to the final route pattern
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		// WithPublicEndpointFn is the replacement for WithPublicEndpoint()
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	// Metrics middleware for prometheus instrumentation
	h = m.Middleware(h)

	// Client IP resolution and spoofing protection middleware, outer so downstream middleware
	// and handlers can use the resolved client ip from context for consistency and security
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: httpmwCfg.TrustedProxyHops,
	})(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h) // request ID

	// Recovery middleware to recover and log panics and serve 500 response.
	// Outer to catch panics from any downstream middleware or handlers
	h = httpmw.Recover(L, nil)(h)

	// Security headers outermost to ensure they are served on every response
	h = httpmw.SecurityHeaders(h)

	// Configure http server options from config
	apiOpts, err := httpCfg.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}

	// Start API HTTP server with middleware and handlers
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", appCfg.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	defer func() {
		err := apiHTTPStop(context.Background())
		if err != nil {
			L.Error(ctx, err, "failed to stop api http listener")
		}
	}()

	// Notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// Wait for ctrl+c / sigterm
	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// Wait for in-flight requests to finish and for load balancer
	// to detect unhealthy and stop sending new requests.
	drainDuration := time.Duration(appCfg.DrainSeconds) * time.Second
	L.Info(context.Background(), "sleeping for drain period", "drain_seconds", appCfg.DrainSeconds)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainDuration):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	// Shutdown components with per-component budget sliced from total.
	// stopProf is synchronous and needs no context, so it's excluded.
	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	}

	budget := time.Duration(appCfg.ShutdownBudgetSeconds) * time.Second
	perComponent := budget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			L.Error(context.Background(), err, s.name+" shutdown")
		}
		ccancel()
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr) //nolint:gosec,noctx // G704: addr is from NOTIFY_SOCKET set by systemd not user input, no context support in net package for unixgram sockets
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
