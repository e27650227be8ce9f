package metrics

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite"
)

const (
	defaultQueueSize = 4096
	flushBatch       = 256
)

type scalarRow struct {
	tag   string
	value float64
	at    time.Time
}

// SQLiteSink persists scalars to a SQLite table. AddScalar only enqueues;
// a background writer batches rows into transactions. When the queue is
// full the scalar is dropped and counted.
type SQLiteSink struct {
	db     *sql.DB
	runID  string
	logger hclog.Logger

	queue   chan scalarRow
	dropped atomic.Uint64
	closed  atomic.Bool
	mu      sync.RWMutex
	done    chan struct{}
	steps   map[string]int64
}

// SQLiteOptions configures NewSQLiteSink.
type SQLiteOptions struct {
	Path      string
	RunID     string // generated when empty
	QueueSize int
	Logger    hclog.Logger
}

// NewSQLiteSink opens (or creates) the database at opts.Path.
func NewSQLiteSink(opts SQLiteOptions) (*SQLiteSink, error) {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE IF NOT EXISTS scalars (
		run_id     TEXT    NOT NULL,
		tag        TEXT    NOT NULL,
		step       INTEGER NOT NULL,
		value      REAL    NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS scalars_run_tag ON scalars (run_id, tag, step);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("init metrics table: %w", err)
	}

	s := &SQLiteSink{
		db:     db,
		runID:  opts.RunID,
		logger: opts.Logger.Named("sqlite-sink"),
		queue:  make(chan scalarRow, opts.QueueSize),
		done:   make(chan struct{}),
		steps:  make(map[string]int64),
	}
	go s.run()
	return s, nil
}

// RunID identifies the rows written by this sink.
func (s *SQLiteSink) RunID() string { return s.runID }

// Dropped returns how many scalars were discarded because the queue was full
// or the sink was closed.
func (s *SQLiteSink) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteSink) AddScalar(tag string, value float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- scalarRow{tag: tag, value: value, at: time.Now()}:
	default:
		s.dropped.Add(1)
	}
}

// Close flushes queued scalars and closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("scalars dropped", "count", n)
	}
	return s.db.Close()
}

// Series reads back the values recorded for tag in step order.
func (s *SQLiteSink) Series(tag string) ([]float64, error) {
	rows, err := s.db.Query("SELECT value FROM scalars WHERE run_id = ? AND tag = ? ORDER BY step", s.runID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) run() {
	defer close(s.done)
	batch := make([]scalarRow, 0, flushBatch)
	for row := range s.queue {
		batch = append(batch, row)
	drain:
		for len(batch) < flushBatch {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		if err := s.flush(batch); err != nil {
			s.logger.Error("flush scalars", "rows", len(batch), "error", err)
		}
		batch = batch[:0]
	}
}

func (s *SQLiteSink) flush(rows []scalarRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO scalars (run_id, tag, step, value, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		step := s.steps[r.tag]
		s.steps[r.tag] = step + 1
		if _, err := stmt.Exec(s.runID, r.tag, step, r.value, r.at.UnixNano()); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
