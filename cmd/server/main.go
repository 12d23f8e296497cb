// Command server runs ringtsdb's HTTP surface over an embedded BadgerDB
// backend, grounded on the teacher's cmd/server/main.go startup and
// graceful-shutdown idiom.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ringtsdb/ringtsdb/internal/config"
	"github.com/ringtsdb/ringtsdb/internal/counter"
	"github.com/ringtsdb/ringtsdb/internal/dashboards"
	"github.com/ringtsdb/ringtsdb/internal/httpapi"
	"github.com/ringtsdb/ringtsdb/internal/kvstore"
	"github.com/ringtsdb/ringtsdb/internal/orchestrator"
	"github.com/ringtsdb/ringtsdb/internal/registry"
	"github.com/ringtsdb/ringtsdb/internal/ring"
)

const badgerGCInterval = 10 * time.Minute

func main() {
	log.Println("starting ringtsdb server...")

	dataDir := os.Getenv(config.EnvClusterFile)
	if dataDir == "" {
		dataDir = "./data/ringtsdb"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("failed to create data directory %q: %v", dataDir, err)
	}

	backend, err := kvstore.NewBadgerBackend(kvstore.BadgerConfig{Path: dataDir})
	if err != nil {
		log.Fatalf("failed to open storage backend at %q: %v", dataDir, err)
	}
	defer backend.Close()
	log.Printf("storage backend ready at %s", dataDir)

	reg := registry.New(backend)
	rg := ring.New(backend, reg)
	ctr := counter.New(backend, reg, rg)
	orch := orchestrator.New(reg, rg)
	dash := dashboards.New(backend)
	hub := httpapi.NewHub()
	srv := httpapi.New(reg, rg, ctr, orch, dash, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	stopGC := make(chan struct{})
	wg.Add(1)
	go runBadgerGC(backend, stopGC, &wg)

	router := srv.Router()
	router.Use(corsMiddleware)

	host := os.Getenv(config.EnvAPIHost)
	if host == "" {
		host = config.DefaultAPIHost
	}
	port := os.Getenv(config.EnvAPIPort)
	if port == "" {
		port = config.DefaultAPIPort
	}

	httpServer := &http.Server{
		Addr:         host + ":" + port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("listening on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutdown signal received, draining...")
	cancel()
	close(stopGC)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown warning: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("background tasks did not stop in time, forcing exit")
	}

	log.Println("ringtsdb server exited cleanly")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// runBadgerGC periodically reclaims BadgerDB value-log space. Ring writes
// are overwrite-heavy by design (spec.md §4.C), so the value log
// accumulates garbage at a steady rate even though live key count never
// grows past each metric's slot count.
func runBadgerGC(backend *kvstore.BadgerBackend, stop chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := backend.RunValueLogGC(0.5); err != nil {
				log.Printf("badger value-log GC: %v", err)
			}
		case <-stop:
			return
		}
	}
}
