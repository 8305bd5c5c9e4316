// kifuroom is a local-first shogi kifu analysis service: it persists
// branching game trees, imports/exports KIF, KIF2, and USI text, and
// drives a USI analysis engine whose streaming evaluations are relayed to
// a single browser owner over a websocket.
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

	"github.com/sekiba/kifuroom/internal/httpapi"
	"github.com/sekiba/kifuroom/internal/sync"
	"github.com/sekiba/kifuroom/internal/version"
	"github.com/sekiba/kifuroom/internal/wsconn"
	"github.com/sekiba/kifuroom/pkg/store"
	"github.com/sekiba/kifuroom/pkg/usi"
	"github.com/seekerror/logw"
)

var (
	addr = flag.String("addr", ":8765", "HTTP listen address")
	db   = flag.String("db", "kifuroom.db", "Path to the sqlite database file")

	enginePath = flag.String("engine", "", "Path to a USI-speaking engine binary")
	engineID   = flag.String("engine-id", "default", "Identifier reported for the configured engine")
	threads    = flag.Int("threads", 1, "Threads value sent via setoption")
	hashMB     = flag.Int("hash", 16, "Hash (MB) value sent via setoption")
	multiPV    = flag.Int("multipv", 1, "MultiPV value sent via setoption")
)

func init() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: kifuroom [options]

kifuroom is a local-first shogi kifu analysis service.
Options:
`)
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logw.Infof(ctx, "kifuroom %v starting", version.Server)

	st, err := store.Open(ctx, *db)
	if err != nil {
		logw.Exitf(ctx, "open store %v: %v", *db, err)
	}
	defer st.Close()

	engineCfg := usi.Config{
		EngineID: *engineID,
		Path:     *enginePath,
		Threads:  *threads,
		HashMB:   *hashMB,
		MultiPV:  *multiPV,
	}

	hub := wsconn.NewHub()
	synchronizer := sync.New(ctx, hub, st, engineCfg)
	go synchronizer.Run(ctx)

	router := httpapi.New(st, hub, synchronizer)
	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logw.Infof(ctx, "listening on %v", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logw.Infof(ctx, "shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logw.Exitf(ctx, "listen on %v: %v", *addr, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logw.Warningf(ctx, "http shutdown: %v", err)
	}
	<-serveErr
}
