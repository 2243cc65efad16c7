// Package runstore persists finished runs. Each run is a zstd-compressed
// JSON record under <dir>/runs, indexed by a SQLite table in
// <dir>/index.sqlite.
package runstore

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/chazu/snapgen/pkg/assembly"
	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/piece"
	"github.com/chazu/snapgen/pkg/strategy"
)

// ErrNotFound is returned by Load for an unknown run ID.
var ErrNotFound = errors.New("runstore: run not found")

// Record is one persisted run: everything needed to reproduce it plus
// the placement log. Options rebuilds the run's assembly options.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Library   string    `json:"library,omitempty"`

	Seed     int64           `json:"seed"`
	Strategy strategy.Params `json:"strategy"`
	Rules    string          `json:"rules"`

	PinTolerance       uint                `json:"pin_tolerance"`
	Colours            *piece.ColourMatrix `json:"colours,omitempty"` // nil: every pair matches
	MaxPieces          int                 `json:"max_pieces"`
	MaxFailuresPerStep int                 `json:"max_failures_per_step"`
	StartTolerance     int                 `json:"start_tolerance"`
	Distance           float64             `json:"distance"`
	CheckOverlaps      bool                `json:"check_overlaps"`
	OverlapTolerance   float64             `json:"overlap_tolerance"`
	VoxelThreshold     float64             `json:"voxel_threshold"`

	Stop     string               `json:"stop"`
	Pieces   int                  `json:"pieces"`
	Attempts int                  `json:"attempts"`
	Steps    []assembly.Placement `json:"steps"`
	Warnings []string             `json:"warnings,omitempty"`
	Problems []string             `json:"problems,omitempty"`
}

// NewRecord captures a result together with the options that produced it.
// Geometry settings are only recorded for the built-in geometric oracle;
// any other oracle is recorded with the geometric defaults.
func NewRecord(res *assembly.Result, opts assembly.Options) Record {
	rec := Record{
		Seed:               res.Seed,
		Strategy:           res.Strategy,
		Rules:              opts.Rules.String(),
		PinTolerance:       opts.PinTolerance,
		MaxPieces:          opts.MaxPieces,
		MaxFailuresPerStep: opts.MaxFailuresPerStep,
		StartTolerance:     opts.StartTolerance,
		Distance:           opts.Distance,
		CheckOverlaps:      opts.CheckOverlaps,
		OverlapTolerance:   collide.DefaultTolerance,
		VoxelThreshold:     collide.DefaultThreshold,
		Stop:               res.Stop.String(),
		Pieces:             len(res.Placed),
		Attempts:           res.Attempts,
		Steps:              res.Steps,
		Warnings:           res.Warnings,
	}
	if opts.Colours != nil {
		m := *opts.Colours
		rec.Colours = &m
	}
	if g, ok := opts.Oracle.(*collide.Geometric); ok && g != nil {
		rec.OverlapTolerance = g.Tolerance
		rec.VoxelThreshold = g.Threshold
	}
	return rec
}

// Options returns the assembly options the run was generated with. Run
// against the same library with a fresh strategy built from r.Strategy,
// they reproduce r.Steps.
func (r Record) Options() (assembly.Options, error) {
	var names []string
	if r.Rules != "" && r.Rules != "none" {
		names = strings.Split(r.Rules, "|")
	}
	rules, err := piece.ParseRules(names)
	if err != nil {
		return assembly.Options{}, fmt.Errorf("runstore: record %s: %w", r.ID, err)
	}
	seed := r.Seed
	opts := assembly.Options{
		Rules:              rules,
		PinTolerance:       r.PinTolerance,
		Seed:               &seed,
		MaxPieces:          r.MaxPieces,
		MaxFailuresPerStep: r.MaxFailuresPerStep,
		StartTolerance:     r.StartTolerance,
		Distance:           r.Distance,
		CheckOverlaps:      r.CheckOverlaps,
		Oracle:             &collide.Geometric{Tolerance: r.OverlapTolerance, Threshold: r.VoxelThreshold},
	}
	if r.Colours != nil {
		m := *r.Colours
		opts.Colours = &m
	}
	return opts, nil
}

// Summary is the indexed subset of a Record.
type Summary struct {
	ID        string
	CreatedAt time.Time
	Seed      int64
	Strategy  string
	Stop      string
	Pieces    int
	Attempts  int
	Path      string
}

// Store is a run store rooted at a directory. It is safe for concurrent
// use; the index is a single SQLite connection.
type Store struct {
	dir string
	db  *sql.DB
}

// Open opens or creates a store rooted at dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("runstore: empty directory")
	}
	if err := os.MkdirAll(filepath.Join(dir, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("runstore: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, fmt.Errorf("runstore: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runstore: %w", err)
	}
	return &Store{dir: dir, db: db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			strategy TEXT NOT NULL,
			params TEXT NOT NULL,
			stop TEXT NOT NULL,
			pieces INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			path TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS runs_created ON runs(created_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes rec and indexes it. A missing ID or timestamp is filled in;
// the stored ID is returned.
func (s *Store) Save(rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	rel := filepath.Join("runs", rec.ID+".json.zst")
	if err := writeRecord(filepath.Join(s.dir, rel), rec); err != nil {
		return "", fmt.Errorf("runstore: write %s: %w", rec.ID, err)
	}

	params, err := json.Marshal(rec.Strategy)
	if err != nil {
		return "", fmt.Errorf("runstore: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO runs(id, created_at, seed, strategy, params, stop, pieces, attempts, path)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UnixNano(), rec.Seed, rec.Strategy.Name, string(params),
		rec.Stop, rec.Pieces, rec.Attempts, rel,
	)
	if err != nil {
		return "", fmt.Errorf("runstore: index %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// Load reads the full record of run id.
func (s *Store) Load(id string) (Record, error) {
	var rel string
	err := s.db.QueryRow(`SELECT path FROM runs WHERE id = ?`, id).Scan(&rel)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("runstore: %w", err)
	}
	rec, err := readRecord(filepath.Join(s.dir, rel))
	if err != nil {
		return Record{}, fmt.Errorf("runstore: read %s: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]Summary, error) {
	q := `SELECT id, created_at, seed, strategy, stop, pieces, attempts, path
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("runstore: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var created int64
		if err := rows.Scan(&sum.ID, &created, &sum.Seed, &sum.Strategy, &sum.Stop, &sum.Pieces, &sum.Attempts, &sum.Path); err != nil {
			return nil, fmt.Errorf("runstore: %w", err)
		}
		sum.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func writeRecord(path string, rec Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)
	if err := json.NewEncoder(bw).Encode(&rec); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func readRecord(path string) (Record, error) {
	var rec Record
	f, err := os.Open(path)
	if err != nil {
		return rec, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return rec, err
	}
	defer dec.Close()

	err = json.NewDecoder(bufio.NewReader(dec)).Decode(&rec)
	return rec, err
}
