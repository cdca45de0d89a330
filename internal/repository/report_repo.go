package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"sentinel/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrStore wraps every persistence failure.
var ErrStore = errors.New("report store failure")

// ErrReportNotFound is returned by GetReport for an unknown id.
var ErrReportNotFound = errors.New("report not found")

const timestampLayout = "2006-01-02 15:04:05"

var reportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_reports_total",
		Help: "Feedback report writes, by result",
	},
	[]string{"result"},
)

// ReportRepository handles feedback storage. SQLite allows one writer at a
// time, so writes are serialized here as well as by the single connection.
type ReportRepository struct {
	db     *sqlx.DB
	dsn    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewReportRepository opens (creating if needed) the SQLite file at dbPath.
func NewReportRepository(dbPath string, logger *zap.Logger) (*ReportRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrStore, err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStore, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %v", ErrStore, err)
	}

	logger.Info("Report repository initialized", zap.String("db_path", dbPath))

	return &ReportRepository{
		db:     db,
		dsn:    dsn,
		logger: logger,
	}, nil
}

// EnsureSchema applies pending migrations. It is safe to call on every start.
func (r *ReportRepository) EnsureSchema() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// migrate closes the database it is given, so it gets its own handle.
	conn, err := sql.Open("sqlite", r.dsn)
	if err != nil {
		return fmt.Errorf("%w: failed to open migration connection: %v", ErrStore, err)
	}

	driver, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: couldn't get database instance for migrations: %v", ErrStore, err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		driver.Close()
		return fmt.Errorf("%w: couldn't read migrations: %v", ErrStore, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("%w: couldn't create migrate instance: %v", ErrStore, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: couldn't run database migration: %v", ErrStore, err)
	}

	version, _, _ := m.Version()
	r.logger.Info("Report schema ready", zap.Uint("version", version))

	return nil
}

// InsertReport appends one report and commits before returning. It is never
// retried; a failure surfaces to the caller as ErrStore.
func (r *ReportRepository) InsertReport(ctx context.Context, text, reportType string) (*models.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, err := r.insert(ctx, text, reportType)
	if err != nil {
		reportsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	reportsTotal.WithLabelValues("ok").Inc()
	return report, nil
}

func (r *ReportRepository) insert(ctx context.Context, text, reportType string) (*models.Report, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op after a successful commit.
	defer tx.Rollback()

	createdAt := time.Now().UTC().Truncate(time.Second)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO reports (created_at, text, report_type) VALUES (?, ?, ?)`,
		createdAt.Format(timestampLayout), text, reportType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}

	return &models.Report{
		ID:         id,
		CreatedAt:  createdAt,
		Text:       text,
		ReportType: reportType,
	}, nil
}

// CountReports returns the number of stored reports
func (r *ReportRepository) CountReports(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reports`); err != nil {
		return 0, fmt.Errorf("%w: failed to count reports: %v", ErrStore, err)
	}
	return total, nil
}

type reportRow struct {
	ID         int64      `db:"id"`
	CreatedAt  sqliteTime `db:"created_at"`
	Text       string     `db:"text"`
	ReportType string     `db:"report_type"`
}

// GetReport retrieves a report by id
func (r *ReportRepository) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	var row reportRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, created_at, text, report_type FROM reports WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get report: %v", ErrStore, err)
	}

	return &models.Report{
		ID:         row.ID,
		CreatedAt:  row.CreatedAt.Time,
		Text:       row.Text,
		ReportType: row.ReportType,
	}, nil
}

// Close closes the database connection
func (r *ReportRepository) Close() error {
	return r.db.Close()
}

// sqliteTime accepts both the driver's parsed time and raw CURRENT_TIMESTAMP text.
type sqliteTime struct {
	time.Time
}

func (t *sqliteTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", value)
	}
	return nil
}

func (t *sqliteTime) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}
