package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"broadside.gg/internal/persistence/indexdb"
	persistlog "broadside.gg/internal/persistence/log"
	"broadside.gg/internal/protocol"
	"broadside.gg/internal/session"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/reconcile"
	"broadside.gg/internal/sim/tuning"
	"broadside.gg/internal/transport/ws"
)

// inbox moves transport callbacks onto the session goroutine. Messages
// and disconnects share one channel so their order is kept.
type inbox chan session.Event

func (b inbox) Handle(raw []byte) error {
	b <- session.Event{Raw: raw}
	return nil
}

func (b inbox) Disconnected() { b <- session.Event{Disconnected: true} }

func main() {
	// .env is optional; real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	var (
		url        = flag.String("url", os.Getenv("BROADSIDE_SYNC_URL"), "chain-sync relay ws url (or set BROADSIDE_SYNC_URL)")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (optional)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "keep the entity registry in memory only")
		record     = flag.Bool("record", true, "record inbound messages under <data>/messages for cmd/replay")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)
	if strings.TrimSpace(*url) == "" {
		logger.Fatalf("missing -url (or BROADSIDE_SYNC_URL)")
	}

	// No animation layer here, so nothing else would settle local shadows.
	tune := tuning.Defaults()
	tune.AutoSettle = true
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		t, err := tuning.LoadOver(tune, tp)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = t
	}

	var (
		reg entities.Registry = entities.NewMapResolver()
		idx *indexdb.SQLiteIndex
	)
	if !*disableDB {
		var err error
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertSettings(tune, nil); err != nil {
			logger.Printf("index settings: %v", err)
		}
		reg = idx
	}

	s, err := session.New(tune, reg, session.Options{
		Logger: logger,
		OnResult: func(r reconcile.Result) {
			logger.Printf("batch tx=%s shots=%d loads=%d snaps=%d skips=%d", r.Tx, len(r.Shots), len(r.Loads), len(r.Snaps), len(r.Skips))
			idx.RecordBatch(r)
		},
		OnNotice: func(n protocol.NoticeMsg) {
			b, _ := json.Marshal(n)
			logger.Printf("notice %s", b)
		},
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	opts := ws.ClientOptions{
		Logger:         logger,
		ReconnectEvery: time.Duration(tune.Reconnect.EverySeconds) * time.Second,
		Burst:          tune.Reconnect.Burst,
	}
	if *record {
		ml := persistlog.NewMessageLogger(*dataDir)
		defer ml.Close()
		opts.Recorder = ml
	}

	in := make(inbox, 1024)
	client := ws.NewClient(*url, in, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("client: %v", err)
		}
	}()

	if err := s.Run(ctx, in, time.Second); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("session: %v", err)
	}
	logger.Printf("shutdown")
}
