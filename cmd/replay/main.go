package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	persistlog "broadside.gg/internal/persistence/log"
	"broadside.gg/internal/protocol"
	"broadside.gg/internal/session"
	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/gameconfig"
	"broadside.gg/internal/sim/reconcile"
	"broadside.gg/internal/sim/tuning"
	"broadside.gg/internal/transport/ws"
)

type stats struct {
	messages uint64
	rejected uint64
	notices  uint64
	shots    uint64
	loads    uint64
	snaps    uint64
	skips    uint64
}

func main() {
	var (
		configPath = flag.String("config", "", "game config yaml (optional if the stream carries CONFIG)")
		batches    = flag.String("batches", "", "messages .jsonl/.jsonl.zst file, or a directory of messages-*.jsonl.zst")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (optional)")
		at         = flag.Int64("at", 0, "unix seconds to evaluate phase queries at (default: now)")
		verbose    = flag.Bool("v", false, "print every reconciled batch and notice as JSON")
		serve      = flag.String("serve", "", "instead of replaying locally, stream the messages to ws clients on this address")
		interval   = flag.Duration("interval", 200*time.Millisecond, "delay between streamed messages (with -serve)")
	)
	flag.Parse()

	if *batches == "" {
		fmt.Fprintln(os.Stderr, "missing -batches")
		os.Exit(2)
	}
	files, err := inputFiles(*batches)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list messages:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no message files found in", *batches)
		os.Exit(1)
	}

	var configMsg []byte
	if *configPath != "" {
		cfg, err := gameconfig.LoadFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
		configMsg, _ = json.Marshal(protocol.ConfigMsg{Type: protocol.TypeConfig, ProtocolVersion: protocol.Version, Config: cfg})
	}

	if *serve != "" {
		if err := serveFiles(*serve, files, configMsg, *interval); err != nil {
			fmt.Fprintln(os.Stderr, "serve:", err)
			os.Exit(1)
		}
		return
	}

	tune := tuning.Defaults()
	tune.AutoSettle = true
	if *tuningPath != "" {
		if tune, err = tuning.LoadOver(tune, *tuningPath); err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}

	now := time.Now
	if *at != 0 {
		fixed := time.Unix(*at, 0)
		now = func() time.Time { return fixed }
	}

	var st stats
	enc := json.NewEncoder(os.Stdout)
	reg := entities.NewMapResolver()
	s, err := session.New(tune, reg, session.Options{
		Now: now,
		OnResult: func(r reconcile.Result) {
			st.shots += uint64(len(r.Shots))
			st.loads += uint64(len(r.Loads))
			st.snaps += uint64(len(r.Snaps))
			st.skips += uint64(len(r.Skips))
			if *verbose {
				_ = enc.Encode(r)
			}
		},
		OnNotice: func(n protocol.NoticeMsg) {
			st.notices++
			if *verbose {
				_ = enc.Encode(n)
			}
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "session:", err)
		os.Exit(1)
	}

	if configMsg != nil {
		if err := s.Handle(configMsg); err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
	}
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			st.messages++
			if err := s.Handle(line); err != nil {
				st.rejected++
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	comps := s.Reconciler().Components()
	fmt.Printf("replay ok: messages=%d rejected=%d batches=%d notices=%d shots=%d loads=%d snaps=%d skips=%d ships=%d\n",
		st.messages, st.rejected, s.Batches(), st.notices, st.shots, st.loads, st.snaps, st.skips, len(comps.Ships()))

	if phase, err := s.Core().CurrentPhase(0); err == nil {
		turn, _ := s.Core().CurrentTurn(0)
		left, _ := s.Core().SecondsUntilPhaseChange(0)
		fmt.Printf("turn=%d phase=%s next_phase_in=%ds\n", turn, phase, left)
	}
	local := s.Reconciler().Shadows().Local
	for _, h := range comps.Ships() {
		id, _ := reg.ChainID(h)
		hp, _ := local.Health.Get(h)
		pos, _ := comps.Position.Get(h)
		out, _ := s.Core().OutOfBounds(pos)
		fmt.Printf("ship %s handle=%d hp=%d pos=(%.1f,%.1f) out_of_bounds=%v actions=%v\n",
			id, h, hp, pos.X, pos.Y, out, s.Core().LegalActionsFor(h))
	}
}

func inputFiles(p string) ([]string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return persistlog.ListMessageFiles(p)
	}
	if !strings.HasSuffix(p, ".jsonl") && !strings.HasSuffix(p, ".jsonl.zst") {
		return nil, fmt.Errorf("%s: want .jsonl or .jsonl.zst", p)
	}
	return []string{p}, nil
}

// serveFiles streams every message to connected clients, sending the
// config first to each new subscriber.
func serveFiles(addr string, files []string, configMsg []byte, every time.Duration) error {
	relay := ws.NewRelay(nil)
	if configMsg != nil {
		relay.OnJoin(func(send func([]byte)) { send(configMsg) })
	}
	mux := http.NewServeMux()
	mux.Handle("/v1/sync", relay.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	fmt.Printf("serving on ws://%s/v1/sync, waiting for a subscriber\n", addr)
	for relay.Subscribers() == 0 {
		select {
		case err := <-errc:
			return err
		case <-time.After(100 * time.Millisecond):
		}
	}
	sent := 0
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			base, err := protocol.DecodeBase(line)
			if err != nil {
				return err
			}
			// Large batches go out as binary frames, like the production relay.
			if err := relay.Broadcast(append([]byte(nil), line...), base.Type == protocol.TypeBatch && len(line) > 4096); err != nil {
				return err
			}
			sent++
			time.Sleep(every)
			return nil
		})
		if err != nil {
			return err
		}
	}
	fmt.Printf("streamed %d messages\n", sent)
	return srv.Close()
}
