package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Store opens consistent snapshots of the database for an export run.
type Store interface {
	Snapshot(ctx context.Context, fn func(Snapshot) error) error
	ListTables(ctx context.Context) ([]string, error)
}

// Snapshot is a transactional view of the database; changes commit when the callback returns nil.
type Snapshot interface {
	Control(ctx context.Context) (ReplicationControl, error)
	CreateSanitizedEditorView(ctx context.Context) error
	DropSanitizedEditorView(ctx context.Context) error
	DumpTable(ctx context.Context, table string, w io.Writer) (TableDump, error)
	PendingCount(ctx context.Context) (int64, error)
	PendingTables(ctx context.Context) ([]string, error)
	ClearPending(ctx context.Context) error
	AdvanceReplicationSequence(ctx context.Context, sequence int64, at time.Time) error
}

// TableDump summarizes one dumped table.
type TableDump struct {
	Table string
	Rows  int64
	Bytes int64
}

// DatabaseStore implements Store on top of gorm.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore wraps db.
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if db == nil {
		return nil, errMissingStore
	}
	return &DatabaseStore{db: db}, nil
}

// Snapshot runs fn inside one transaction, serializable on PostgreSQL.
func (s *DatabaseStore) Snapshot(ctx context.Context, fn func(Snapshot) error) error {
	var options []*sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		options = append(options, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&databaseSnapshot{tx: tx})
	}, options...)
}

// ListTables returns the names of every table in the schema, sorted.
func (s *DatabaseStore) ListTables(ctx context.Context) ([]string, error) {
	tables, err := s.db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("export: list tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

type databaseSnapshot struct {
	tx *gorm.DB
}

func (s *databaseSnapshot) Control(ctx context.Context) (ReplicationControl, error) {
	var control ReplicationControl
	if err := s.tx.WithContext(ctx).Order("id ASC").Take(&control).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReplicationControl{}, fmt.Errorf("export: replication_control has no row")
		}
		return ReplicationControl{}, fmt.Errorf("export: read replication control: %w", err)
	}
	return control, nil
}

const sanitizedEditorView = `CREATE TEMPORARY VIEW editor_sanitised AS
SELECT id, name, 0 AS privs, '' AS email, website, bio, member_since,
       email_confirm_date, NULL AS last_login_date, '' AS password, '' AS ha1, deleted
FROM editor`

// CreateSanitizedEditorView projects the editor table without credentials or contact details.
func (s *databaseSnapshot) CreateSanitizedEditorView(ctx context.Context) error {
	if err := s.DropSanitizedEditorView(ctx); err != nil {
		return err
	}
	if err := s.tx.WithContext(ctx).Exec(sanitizedEditorView).Error; err != nil {
		return fmt.Errorf("export: create %s: %w", tableEditorSanitised, err)
	}
	return nil
}

func (s *databaseSnapshot) DropSanitizedEditorView(ctx context.Context) error {
	if err := s.tx.WithContext(ctx).Exec("DROP VIEW IF EXISTS " + pq.QuoteIdentifier(tableEditorSanitised)).Error; err != nil {
		return fmt.Errorf("export: drop %s: %w", tableEditorSanitised, err)
	}
	return nil
}

// DumpTable writes every row of table to w in COPY text format.
func (s *databaseSnapshot) DumpTable(ctx context.Context, table string, w io.Writer) (TableDump, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1", pq.QuoteIdentifier(table))
	rows, err := s.tx.WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return TableDump{}, fmt.Errorf("export: query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return TableDump{}, fmt.Errorf("export: columns of %s: %w", table, err)
	}
	values := make([]interface{}, len(columns))
	targets := make([]interface{}, len(columns))
	for index := range values {
		targets[index] = &values[index]
	}

	writer := newCopyWriter(w)
	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return TableDump{}, fmt.Errorf("export: scan %s: %w", table, err)
		}
		if err := writer.WriteRow(values); err != nil {
			return TableDump{}, fmt.Errorf("export: write %s: %w", table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return TableDump{}, fmt.Errorf("export: iterate %s: %w", table, err)
	}
	if err := writer.Flush(); err != nil {
		return TableDump{}, fmt.Errorf("export: flush %s: %w", table, err)
	}
	return TableDump{Table: table, Rows: writer.rows, Bytes: writer.bytes}, nil
}

func (s *databaseSnapshot) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.tx.WithContext(ctx).Model(&PendingChange{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("export: count pending changes: %w", err)
	}
	return count, nil
}

// PendingTables lists the distinct tables named by staged changes.
func (s *databaseSnapshot) PendingTables(ctx context.Context) ([]string, error) {
	var tables []string
	if err := s.tx.WithContext(ctx).
		Model(&PendingChange{}).
		Distinct("tablename").
		Order("tablename ASC").
		Pluck("tablename", &tables).Error; err != nil {
		return nil, fmt.Errorf("export: list pending tables: %w", err)
	}
	return tables, nil
}

func (s *databaseSnapshot) ClearPending(ctx context.Context) error {
	if err := s.tx.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&PendingData{}).Error; err != nil {
		return fmt.Errorf("export: clear %s: %w", tablePendingData, err)
	}
	if err := s.tx.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&PendingChange{}).Error; err != nil {
		return fmt.Errorf("export: clear %s: %w", tablePending, err)
	}
	return nil
}

func (s *databaseSnapshot) AdvanceReplicationSequence(ctx context.Context, sequence int64, at time.Time) error {
	result := s.tx.WithContext(ctx).Model(&ReplicationControl{}).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Updates(map[string]interface{}{
			"current_replication_sequence": sequence,
			"last_replication_date":        at.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("export: advance replication sequence: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("export: replication_control has no row")
	}
	return nil
}
