package sql

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/syssam/veil"
	"github.com/syssam/veil/dialect"
)

// Stats is a snapshot of the statements run through a StatsDriver.
type Stats struct {
	Queries  int64
	Execs    int64
	Errors   int64
	Slow     int64
	Duration time.Duration
	// ByOp counts queries per session operation, read from the context
	// with veil.OpFromContext. Statements without an operation, such as
	// the ones of a commit, are only counted in the totals.
	ByOp map[veil.Op]int64
}

// String returns the snapshot in key=value form, operations sorted.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "queries=%d execs=%d errors=%d slow=%d duration=%s", s.Queries, s.Execs, s.Errors, s.Slow, s.Duration)
	for _, op := range slices.Sorted(maps.Keys(s.ByOp)) {
		fmt.Fprintf(&b, " %s=%d", op, s.ByOp[op])
	}
	return b.String()
}

// StatsDriver is a driver that counts the statements it runs, per
// operation, and reports slow ones.
//
//	drv := sql.NewStatsDriver(db, sql.WithSlowQueries(200*time.Millisecond, logger))
//	sess := session.New(drv, graph)
//	...
//	logger.Info("statements", "stats", drv.Stats().String())
type StatsDriver struct {
	dialect.Driver
	slow time.Duration
	log  *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowQueries logs statements running longer than threshold at warn
// level on l. A nil logger uses slog.Default. Slow statements are always
// counted when a threshold is set.
func WithSlowQueries(threshold time.Duration, l *slog.Logger) StatsOption {
	return func(d *StatsDriver) {
		d.slow = threshold
		d.log = l
		if d.log == nil {
			d.log = slog.Default()
		}
	}
}

// NewStatsDriver wraps drv with statement statistics.
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	d := &StatsDriver{Driver: drv, stats: Stats{ByOp: make(map[veil.Op]int64)}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats returns a snapshot of the statistics.
func (d *StatsDriver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.ByOp = maps.Clone(d.stats.ByOp)
	return s
}

// Reset clears the statistics.
func (d *StatsDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Stats{ByOp: make(map[veil.Op]int64)}
}

// Query implements the dialect.ExecQuerier interface.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err, true)
	return err
}

// Exec implements the dialect.ExecQuerier interface.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, time.Since(start), err, false)
	return err
}

// Tx starts a transaction whose statements are counted by d.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, drv: d}, nil
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, took time.Duration, err error, read bool) {
	op, tagged := veil.OpFromContext(ctx)
	slow := d.slow > 0 && took > d.slow
	d.mu.Lock()
	if read {
		d.stats.Queries++
		if tagged {
			d.stats.ByOp[op]++
		}
	} else {
		d.stats.Execs++
	}
	if err != nil {
		d.stats.Errors++
	}
	if slow {
		d.stats.Slow++
	}
	d.stats.Duration += took
	d.mu.Unlock()
	if slow {
		attrs := []any{"duration", took, "sql", query, "args", args}
		if tagged {
			attrs = append(attrs, "op", op.String())
		}
		d.log.WarnContext(ctx, "slow query", attrs...)
	}
}

type statsTx struct {
	dialect.Tx
	drv *StatsDriver
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.drv.record(ctx, query, args, time.Since(start), err, true)
	return err
}

func (tx *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.drv.record(ctx, query, args, time.Since(start), err, false)
	return err
}

// DebugDriver is a driver that logs every statement at debug level,
// with the operation it runs for when the context carries one.
type DebugDriver struct {
	dialect.Driver
	log *slog.Logger
}

// NewDebugDriver wraps drv with statement logging on l, or on
// slog.Default when l is nil.
func NewDebugDriver(drv dialect.Driver, l *slog.Logger) *DebugDriver {
	if l == nil {
		l = slog.Default()
	}
	return &DebugDriver{Driver: drv, log: l}
}

// Query implements the dialect.ExecQuerier interface.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	debugStatement(ctx, d.log, "query", query, args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec implements the dialect.ExecQuerier interface.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	debugStatement(ctx, d.log, "exec", query, args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction whose statements and outcome are logged.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.log.DebugContext(ctx, "begin", "err", err)
		return nil, err
	}
	d.log.DebugContext(ctx, "begin")
	return &debugTx{Tx: tx, log: d.log}, nil
}

func debugStatement(ctx context.Context, l *slog.Logger, msg, query string, args any) {
	attrs := []any{"sql", query, "args", args}
	if op, ok := veil.OpFromContext(ctx); ok {
		attrs = append(attrs, "op", op.String())
	}
	l.DebugContext(ctx, msg, attrs...)
}

type debugTx struct {
	dialect.Tx
	log *slog.Logger
}

func (tx *debugTx) Query(ctx context.Context, query string, args, v any) error {
	debugStatement(ctx, tx.log, "tx query", query, args)
	return tx.Tx.Query(ctx, query, args, v)
}

func (tx *debugTx) Exec(ctx context.Context, query string, args, v any) error {
	debugStatement(ctx, tx.log, "tx exec", query, args)
	return tx.Tx.Exec(ctx, query, args, v)
}

func (tx *debugTx) Commit() error {
	err := tx.Tx.Commit()
	tx.log.Debug("commit", "err", err)
	return err
}

func (tx *debugTx) Rollback() error {
	err := tx.Tx.Rollback()
	tx.log.Debug("rollback", "err", err)
	return err
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
)
