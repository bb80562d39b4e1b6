package tablemgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxCascadeDepth bounds how deeply cascade hooks may nest.
const DefaultMaxCascadeDepth = 16

// Manager runs set-based CRUD for registered entity types over a single
// connection. It is not safe for concurrent use: serialize calls or give
// each goroutine its own Manager over its own Conn.
type Manager struct {
	conn    Conn
	builder Builder
	logger  *slog.Logger

	maxDepth         int
	statementTimeout time.Duration

	depth     int
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMaxCascadeDepth limits nested cascade hooks. Values <= 0 keep the default.
func WithMaxCascadeDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithStatementTimeout bounds each top-level call. Zero disables it.
func WithStatementTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.statementTimeout = d
	}
}

// New creates a Manager that owns conn. The caller acquires conn; the
// Manager releases it in Close.
func New(conn Conn, opts ...Option) *Manager {
	m := &Manager{
		conn:     conn,
		builder:  Builder{Dialect: conn.Dialect()},
		logger:   slog.Default(),
		maxDepth: DefaultMaxCascadeDepth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dialect returns the dialect of the underlying connection.
func (m *Manager) Dialect() Dialect { return m.builder.Dialect }

// Close releases the connection. Only the first call does any work;
// later calls return the same result.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closed = true
		m.closeErr = m.conn.Close(ctx)
		if m.closeErr != nil {
			m.logger.Warn("close connection", "error", m.closeErr)
		}
	})
	return m.closeErr
}

// call is the per-operation context: logger with op id and optional timeout.
type call struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	start  time.Time
}

// begin prepares a call for op against table. Nested calls made from
// cascade hooks share the outer deadline.
func (m *Manager) begin(ctx context.Context, op, table string) (*call, error) {
	if m.closed {
		return nil, ErrClosed
	}

	c := &call{
		ctx:    ctx,
		cancel: func() {},
		start:  time.Now(),
		logger: m.logger.With(
			"op", op,
			"op_id", uuid.NewString(),
			"table", table,
		),
	}
	if m.statementTimeout > 0 && m.depth == 0 {
		c.ctx, c.cancel = context.WithTimeout(ctx, m.statementTimeout)
	}
	return c, nil
}

// end logs the outcome of a call.
func (c *call) end(err error, attrs ...any) {
	c.cancel()
	attrs = append(attrs, "duration", time.Since(c.start))
	if err != nil {
		c.logger.Error("table operation failed", append(attrs, "error", err)...)
		return
	}
	c.logger.Info("table operation complete", attrs...)
}
