// Command relaycore runs the relaycore HTTP server: the model router,
// state repository, session ledger, and replay engine behind a single
// operational HTTP surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaycore/relaycore/internal/app"
	"github.com/relaycore/relaycore/internal/config"
)

var version = "dev"

func main() {
	healthcheck := flag.Bool("healthcheck", false, "probe the local server's /healthz and exit")
	addr := flag.String("healthcheck-addr", "http://localhost:8080", "address to probe with -healthcheck")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("relaycore", version)
		return
	}

	if *healthcheck {
		if err := probeHealthz(*addr); err != nil {
			fmt.Fprintln(os.Stderr, "healthcheck failed:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relaycore:", err)
		os.Exit(1)
	}
}

func probeHealthz(addr string) error {
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy status %d", resp.StatusCode)
	}
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, err := app.NewServer(cfg, nil)
	if err != nil {
		return fmt.Errorf("new server: %w", err)
	}

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			srv.Router().ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case err := <-errCh:
			return fmt.Errorf("listen: %w", err)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				srv.Reload()
			default:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(ctx)
				return srv.Close(ctx)
			}
		}
	}
}
