package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	_ "modernc.org/sqlite"

	"broadside.gg/internal/sim/entities"
	"broadside.gg/internal/sim/gameconfig"
	"broadside.gg/internal/sim/reconcile"
	"broadside.gg/internal/sim/tuning"
)

// SQLiteIndex is an entities.Registry whose handle assignments survive
// restarts, plus a secondary index of reconciled batches.
//
// Lookups are served from memory. Every write goes through one writer
// goroutine, since the database has a single connection.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	mu     deadlock.RWMutex
	byID   map[entities.ID]entities.Handle
	byH    map[entities.Handle]entities.ID
	kinds  map[entities.Handle]entities.Kind
	nextID entities.Handle

	dropped atomic.Uint64
}

type reqKind int

const (
	reqRegister reqKind = iota + 1
	reqRemove
	reqReset
	reqBatch
)

type req struct {
	kind reqKind

	handle entities.Handle
	id     entities.ID
	ek     entities.Kind
	batch  batchRow
}

type batchRow struct {
	Tx         string
	Shots      int
	Loads      int
	Snaps      int
	Skips      int
	Raw        []byte
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS entities (
			handle INTEGER PRIMARY KEY,
			chain_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tx TEXT NOT NULL,
			shots INTEGER NOT NULL,
			loads INTEGER NOT NULL,
			snaps INTEGER NOT NULL,
			skips INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_tx ON batches(tx);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) load() error {
	s.byID = map[entities.ID]entities.Handle{}
	s.byH = map[entities.Handle]entities.ID{}
	s.kinds = map[entities.Handle]entities.Kind{}
	s.nextID = 1

	rows, err := s.db.Query(`SELECT handle, chain_id, kind FROM entities`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			h    int64
			cid  string
			kind string
		)
		if err := rows.Scan(&h, &cid, &kind); err != nil {
			return err
		}
		id, err := entities.ParseID(cid)
		if err != nil {
			return fmt.Errorf("entities row %d: %w", h, err)
		}
		s.byID[id] = entities.Handle(h)
		s.byH[entities.Handle(h)] = id
		s.kinds[entities.Handle(h)] = entities.Kind(kind)
		if entities.Handle(h) >= s.nextID {
			s.nextID = entities.Handle(h) + 1
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var v string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key='next_handle'`).Scan(&v)
	if err == nil {
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil && entities.Handle(n) > s.nextID {
			s.nextID = entities.Handle(n)
		}
	} else if err != sql.ErrNoRows {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// send blocks: registry rows must not be dropped.
func (s *SQLiteIndex) send(r req) {
	if s.closed.Load() {
		return
	}
	s.ch <- r
}

func (s *SQLiteIndex) Resolve(id entities.ID) (entities.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.byID[id]
	return h, ok
}

func (s *SQLiteIndex) ChainID(h entities.Handle) (entities.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byH[h]
	return id, ok
}

func (s *SQLiteIndex) Kind(h entities.Handle) (entities.Kind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.kinds[h]
	return k, ok
}

func (s *SQLiteIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Register is idempotent. Handles are never reused within a game, even
// across restarts.
func (s *SQLiteIndex) Register(id entities.ID, kind entities.Kind) (entities.Handle, error) {
	if id.IsZero() {
		return 0, fmt.Errorf("register: zero entity id")
	}
	s.mu.Lock()
	if h, ok := s.byID[id]; ok {
		s.mu.Unlock()
		return h, nil
	}
	h := s.nextID
	s.nextID++
	s.byID[id] = h
	s.byH[h] = id
	s.kinds[h] = kind
	s.mu.Unlock()

	s.send(req{kind: reqRegister, handle: h, id: id, ek: kind})
	return h, nil
}

func (s *SQLiteIndex) Remove(id entities.ID) error {
	s.mu.Lock()
	h, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("remove: %w: %s", entities.ErrUnresolvableEntity, id)
	}
	delete(s.byID, id)
	delete(s.byH, h)
	delete(s.kinds, h)
	s.mu.Unlock()

	s.send(req{kind: reqRemove, handle: h})
	return nil
}

// Reset forgets every entity and restarts handle numbering for a new game.
func (s *SQLiteIndex) Reset() error {
	s.mu.Lock()
	s.byID = map[entities.ID]entities.Handle{}
	s.byH = map[entities.Handle]entities.ID{}
	s.kinds = map[entities.Handle]entities.Kind{}
	s.nextID = 1
	s.mu.Unlock()

	s.send(req{kind: reqReset})
	return nil
}

// RecordBatch indexes a reconciled batch. It never blocks the session;
// rows are dropped if the writer falls behind.
func (s *SQLiteIndex) RecordBatch(res reconcile.Result) {
	if s == nil || s.closed.Load() {
		return
	}
	raw, _ := json.Marshal(struct {
		Tx    string                    `json:"tx"`
		Shots []reconcile.ExecutedShots `json:"shots,omitempty"`
		Loads []reconcile.ExecutedLoad  `json:"loads,omitempty"`
		Snaps []reconcile.Snap          `json:"snaps,omitempty"`
	}{res.Tx, res.Shots, res.Loads, res.Snaps})
	r := batchRow{
		Tx:         res.Tx,
		Shots:      len(res.Shots),
		Loads:      len(res.Loads),
		Snaps:      len(res.Snaps),
		Skips:      len(res.Skips),
		Raw:        raw,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqBatch, batch: r}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped counts writes lost to backpressure or database errors.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

// UpsertSettings stores the tuning and game config the session runs with.
// Call it before the first Register.
func (s *SQLiteIndex) UpsertSettings(tune tuning.Tuning, cfg *gameconfig.GameConfig) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name string
		json []byte
	}
	var rows []kv
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", json: b})
	}
	if cfg != nil {
		if b, err := json.Marshal(cfg); err == nil {
			rows = append(rows, kv{name: "game_config", json: b})
		}
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO settings(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		sum := sha256.Sum256(r.json)
		if _, err := stmt.Exec(r.name, hex.EncodeToString(sum[:]), string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEntity, _ := s.db.Prepare(`INSERT OR REPLACE INTO entities(handle,chain_id,kind) VALUES(?,?,?)`)
	deleteEntity, _ := s.db.Prepare(`DELETE FROM entities WHERE handle=?`)
	insertBatch, _ := s.db.Prepare(`INSERT INTO batches(tx,shots,loads,snaps,skips,raw_json,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	setNext, _ := s.db.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES('next_handle',?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEntity, deleteEntity, insertBatch, setNext} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		pending       []req
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() error {
		var err error
		for attempt := 0; attempt < 5; attempt++ {
			var txx *sql.Tx
			if txx, err = s.db.BeginTx(ctx, nil); err == nil {
				tx = txx
				lastCommit = time.Now()
				return nil
			}
			time.Sleep(50 * time.Millisecond)
		}
		return err
	}
	exec := func(st *sql.Stmt, args ...any) error {
		if st == nil {
			return fmt.Errorf("statement not prepared")
		}
		_, err := tx.Stmt(st).Exec(args...)
		return err
	}
	apply := func(r req) error {
		switch r.kind {
		case reqRegister:
			if err := exec(insertEntity, int64(r.handle), r.id.String(), string(r.ek)); err != nil {
				return err
			}
			return exec(setNext, fmt.Sprint(int64(r.handle)+1))
		case reqRemove:
			return exec(deleteEntity, int64(r.handle))
		case reqReset:
			if _, err := tx.Exec(`DELETE FROM entities`); err != nil {
				return err
			}
			_, err := tx.Exec(`DELETE FROM meta WHERE key='next_handle'`)
			return err
		case reqBatch:
			b := r.batch
			return exec(insertBatch, b.Tx, b.Shots, b.Loads, b.Snaps, b.Skips, string(b.Raw), b.RecordedAt)
		}
		return nil
	}
	// write applies r in the open tx. A failed statement rolls back the
	// tx, so the ops already in it are replayed into a fresh one; only r
	// itself is given up.
	write := func(r req) {
		if tx == nil {
			if err := begin(); err != nil {
				s.lose([]req{r}, err)
				return
			}
		}
		err := apply(r)
		if err == nil {
			pending = append(pending, r)
			return
		}
		_ = tx.Rollback()
		tx = nil
		s.lose([]req{r}, err)
		replay := pending
		pending = nil
		if len(replay) == 0 {
			return
		}
		if err := begin(); err != nil {
			s.lose(replay, err)
			return
		}
		for _, p := range replay {
			if err := apply(p); err != nil {
				_ = tx.Rollback()
				tx = nil
				s.lose(replay, err)
				pending = nil
				return
			}
			pending = append(pending, p)
		}
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.lose(pending, err)
		}
		tx = nil
		pending = nil
		lastCommit = time.Now()
	}

	for r := range s.ch {
		write(r)
		if tx != nil && (len(pending) >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}

// lose logs and counts writes that could not be persisted.
func (s *SQLiteIndex) lose(rs []req, err error) {
	for _, r := range rs {
		s.dropped.Add(1)
		switch r.kind {
		case reqRegister:
			log.Printf("indexdb: lost register handle=%d id=%s: %v", r.handle, r.id, err)
		case reqRemove:
			log.Printf("indexdb: lost remove handle=%d: %v", r.handle, err)
		case reqReset:
			log.Printf("indexdb: lost reset: %v", err)
		case reqBatch:
			log.Printf("indexdb: lost batch tx=%s: %v", r.batch.Tx, err)
		}
	}
}
