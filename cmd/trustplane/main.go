// trustplane is the governance core daemon: it validates its
// environment, wires the gateway, decision factory, span tracker and
// cache, and serves the governed scan API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegisflow/trustplane/pkg/archive"
	"github.com/aegisflow/trustplane/pkg/audit"
	"github.com/aegisflow/trustplane/pkg/cache"
	"github.com/aegisflow/trustplane/pkg/config"
	"github.com/aegisflow/trustplane/pkg/decision"
	"github.com/aegisflow/trustplane/pkg/gateway"
	"github.com/aegisflow/trustplane/pkg/observability"
	"github.com/aegisflow/trustplane/pkg/startup"

	_ "github.com/lib/pq" // Postgres Driver
)

func main() {
	os.Exit(Run(os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated from main for testing.
func Run(stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	profile, err := config.LoadProfile(cfg.ProfilesDir, cfg.ProfileName)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	identity := startup.NewGate().AssertStartupRequirements(ctx)
	if identity == nil {
		// The gate already printed its banner and recorded the abort.
		return 1
	}

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "trustplane",
		ServiceVersion: profile.Version,
		Environment:    profile.Name,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: observability: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	defer db.Close()

	factory := decision.NewFactory(identity).
		WithAuditLogger(audit.NewLogger("decision")).
		WithStore(decision.NewPostgresStore(db))

	preset := gateway.Preset(profile.Gateway.Preset)
	if preset == "" {
		preset = gateway.PresetStandard
	}

	engine := gateway.NewHTTPEngine(cfg.EngineURL, cfg.EngineAPIKey)
	gw, err := gateway.NewBuilder().
		WithPreset(preset).
		WithSecret(cfg.GatewaySecret).
		WithDerivedCallerKeys().
		WithRateLimit(profile.Gateway.RateRPS, profile.Gateway.Burst).
		WithEngine(engine).
		WithAuditLogger(audit.NewLogger("gateway")).
		Build()
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: gateway: %v\n", err)
		return 1
	}

	results := cache.New[*gateway.ScanResult](
		time.Duration(profile.Cache.TTLMs)*time.Millisecond,
		profile.Cache.MaxEntries,
	)
	stopSweep := results.StartSweeper(30 * time.Second)
	defer stopSweep()

	var tier *cache.ReadThrough[*gateway.ScanResult]
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		tier = cache.NewReadThrough(results, client, "trustplane:scan")
	}

	exporter, err := archive.NewExporter(ctx, archive.BackendConfig{
		Backend: profile.Archive.Backend,
		Bucket:  profile.Archive.Bucket,
		Region:  profile.Archive.Region,
		Prefix:  profile.Archive.Prefix,
	})
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: archive: %v\n", err)
		return 1
	}

	srv := newServer(gw, factory, obs, exporter, results, tier)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("trustplane listening on :%s (profile=%s)", cfg.Port, profile.Name)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(stderr, "FATAL: serve: %v\n", err)
			return 1
		}
		return 0
	}
}
