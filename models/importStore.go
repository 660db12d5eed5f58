package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// upsertSpec describes an INSERT ... ON DUPLICATE KEY UPDATE for one table.
// The unique key is whatever unique index the table carries (org_id / person_id);
// only the mutable columns are overwritten when it collides.
type upsertSpec struct {
	table   string
	columns []string
	mutable []string
	// touch is set to CURRENT_TIMESTAMP on insert and on update.
	touch string
}

var organizationUpsert = upsertSpec{
	table:   "organization",
	columns: []string{"company_id", "org_id", "org_name", "parent_org_id", "tree_level"},
	mutable: []string{"org_name", "parent_org_id", "tree_level"},
}

var employeeUpsert = upsertSpec{
	table: "employee",
	columns: []string{"person_id", "first_name", "last_name", "work_mobile", "work_phone", "work_title",
		"org_id", "email", "manager_id", "manager_code", "active_employee"},
	mutable: []string{"first_name", "last_name", "work_mobile", "work_phone", "work_title",
		"org_id", "email", "manager_id", "manager_code", "active_employee"},
	touch: "updated_at",
}

func (s upsertSpec) statement(rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(s.columns, ", "))
	if s.touch != "" {
		b.WriteString(", ")
		b.WriteString(s.touch)
	}
	b.WriteString(") VALUES ")

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(s.columns)), ", ")
	if s.touch != "" {
		tuple += ", CURRENT_TIMESTAMP"
	}
	tuple += ")"
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}

	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	for i, col := range s.mutable {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" = VALUES(")
		b.WriteString(col)
		b.WriteString(")")
	}
	if s.touch != "" {
		b.WriteString(", ")
		b.WriteString(s.touch)
		b.WriteString(" = CURRENT_TIMESTAMP")
	}
	return b.String()
}

// ImportStore is the MySQL side of the CSV import.
type ImportStore struct {
	DB *gorm.DB
}

func NewImportStore(db *gorm.DB) *ImportStore {
	return &ImportStore{DB: db}
}

var ErrStoreNotReady = errors.New("import store: database not initialized")

func (s *ImportStore) db(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.DB == nil {
		return nil, ErrStoreNotReady
	}
	return s.DB.WithContext(ctx), nil
}

// maxPlaceholders is MySQL's limit on bind parameters per prepared statement.
const maxPlaceholders = 65535

// rowsPerStatement is the largest row count whose placeholders fit one statement.
func (s upsertSpec) rowsPerStatement() int {
	return maxPlaceholders / len(s.columns)
}

// execUpsert writes batch with one statement, or with several statements in a
// single transaction when the batch exceeds the placeholder limit.
func execUpsert[T any](db *gorm.DB, spec upsertSpec, batch []T, values func(T) []any) error {
	exec := func(tx *gorm.DB, rows []T) error {
		args := make([]any, 0, len(rows)*len(spec.columns))
		for _, row := range rows {
			args = append(args, values(row)...)
		}
		return tx.Exec(spec.statement(len(rows)), args...).Error
	}

	chunk := spec.rowsPerStatement()
	if len(batch) <= chunk {
		return exec(db, batch)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(batch); start += chunk {
			if err := exec(tx, batch[start:min(start+chunk, len(batch))]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertOrganizations writes the batch atomically.
func (s *ImportStore) UpsertOrganizations(ctx context.Context, batch []Organization) error {
	if len(batch) == 0 {
		return nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return execUpsert(db, organizationUpsert, batch, Organization.values)
}

// UpsertEmployees writes the batch atomically; updated_at is refreshed to the
// server time for every row, inserted or updated.
func (s *ImportStore) UpsertEmployees(ctx context.Context, batch []Employee) error {
	if len(batch) == 0 {
		return nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return execUpsert(db, employeeUpsert, batch, Employee.values)
}

// ExistingOrgIds returns the subset of orgIds present in the organization table.
func (s *ImportStore) ExistingOrgIds(ctx context.Context, orgIds []string) ([]string, error) {
	if len(orgIds) == 0 {
		return nil, nil
	}
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	var existing []string
	if err := db.Model(&Organization{}).Where("org_id IN ?", orgIds).Pluck("org_id", &existing).Error; err != nil {
		return nil, err
	}
	return existing, nil
}

// CurrentTime reads the database clock.
func (s *ImportStore) CurrentTime(ctx context.Context) (time.Time, error) {
	db, err := s.db(ctx)
	if err != nil {
		return time.Time{}, err
	}
	var now time.Time
	if err := db.Raw("SELECT CURRENT_TIMESTAMP()").Row().Scan(&now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// DeactivateEmployeesNotUpdatedSince flags every active employee untouched since t0 as inactive.
func (s *ImportStore) DeactivateEmployeesNotUpdatedSince(ctx context.Context, t0 time.Time) (int64, error) {
	db, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Exec(`
		UPDATE employee
		SET active_employee = false, updated_at = CURRENT_TIMESTAMP
		WHERE active_employee = true
		  AND (updated_at IS NULL OR updated_at < ?)`, t0)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (s *ImportStore) CreateImportRun(ctx context.Context, run *ImportRun) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.Create(run).Error
}

func (s *ImportStore) FinishImportRun(ctx context.Context, run *ImportRun) error {
	db, err := s.db(ctx)
	if err != nil {
		return err
	}
	return db.Model(&ImportRun{}).Where("run_id = ?", run.RunId).Updates(map[string]interface{}{
		"status":                run.Status,
		"source_file":           run.SourceFile,
		"rows_read":             run.RowsRead,
		"rows_written":          run.RowsWritten,
		"batches":               run.Batches,
		"orgs_corrected":        run.OrgsCorrected,
		"employees_deactivated": run.EmployeesDeactivated,
		"error":                 run.Error,
		"finished_at":           run.FinishedAt,
		"duration_ms":           run.DurationMs,
	}).Error
}

// ListImportRuns returns the latest runs, newest first. An empty dataset lists both.
func (s *ImportStore) ListImportRuns(ctx context.Context, dataset string, limit int) ([]ImportRun, error) {
	db, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := db.Order("id DESC").Limit(limit)
	if dataset != "" {
		q = q.Where("dataset = ?", dataset)
	}
	var runs []ImportRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
