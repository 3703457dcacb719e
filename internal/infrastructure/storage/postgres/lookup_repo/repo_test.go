package lookup_repo

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catreg/internal/core/apperror"
	"catreg/internal/domain/masterdata"
	"catreg/internal/infrastructure/storage/postgres"
)

var (
	drugColumns    = []string{"id", "name", "drug_class", "default_dose", "is_controlled", "active", "sort_order", "created_at", "updated_at", "deleted_at"}
	comorbColumns  = []string{"id", "name", "description", "active", "sort_order", "created_at", "updated_at", "deleted_at"}
	sentinelColumn = []string{"id", "name", "severity", "active", "created_at", "updated_at", "deleted_at"}
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepo(postgres.NewTxManagerFromDB(mock)), mock
}

func expectColumns(mock pgxmock.PgxPoolIface, table string, cols []string) {
	rows := pgxmock.NewRows([]string{"column_name"})
	for _, c := range cols {
		rows.AddRow(c)
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1")).
		WithArgs(table).
		WillReturnRows(rows)
}

func expectBegin(mock pgxmock.PgxPoolIface) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout")).
		WillReturnResult(pgxmock.NewResult("SET", 0))
}

const reorderSQL = "UPDATE comorbidities SET sort_order = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL"

func TestRepo_Reorder_Commits(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "comorbidities")

	expectColumns(mock, "comorbidities", comorbColumns)
	expectBegin(mock)
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(3, int64(1)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(1, int64(2)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(2, int64(3)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.Reorder(context.Background(), def, map[int64]int{1: 3, 2: 1, 3: 2})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Reorder_MissingRowRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "comorbidities")

	expectColumns(mock, "comorbidities", comorbColumns)
	expectBegin(mock)
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(3, int64(1)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(1, int64(2)).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Reorder(context.Background(), def, map[int64]int{1: 3, 2: 1, 3: 2})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeReorderFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Reorder_StorageErrorRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "comorbidities")

	expectColumns(mock, "comorbidities", comorbColumns)
	expectBegin(mock)
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(5, int64(10)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Reorder(context.Background(), def, map[int64]int{10: 5, 11: 6})
	assert.True(t, apperror.HasCode(err, apperror.CodeReorderFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Reorder_NotSortable(t *testing.T) {
	repo, mock := newMockRepo(t)

	// sentinel_events is declared unsortable.
	err := repo.Reorder(context.Background(), loadDef(t, "sentinel_events"), map[int64]int{1: 1})
	assert.True(t, apperror.HasCode(err, apperror.CodeNotSortable))

	// Declared sortable but the table has no sort_order column.
	expectColumns(mock, "comorbidities", []string{"id", "name", "description", "active", "created_at", "updated_at", "deleted_at"})
	err = repo.Reorder(context.Background(), loadDef(t, "comorbidities"), map[int64]int{1: 1})
	assert.True(t, apperror.HasCode(err, apperror.CodeNotSortable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Reorder_NestedUsesSavepoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	tm := postgres.NewTxManagerFromDB(mock)
	repo := NewRepo(tm)
	def := loadDef(t, "comorbidities")

	expectBegin(mock)
	expectColumns(mock, "comorbidities", comorbColumns)
	mock.ExpectExec(`^SAVEPOINT sp_\d+$`).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec(regexp.QuoteMeta(reorderSQL)).WithArgs(1, int64(9)).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT sp_\d+$`).WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	mock.ExpectRollback()

	err = tm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return repo.Reorder(ctx, def, map[int64]int{9: 1})
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeReorderFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Paginate(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "drugs")
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	expectColumns(mock, "drugs", drugColumns)
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout")).
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM drugs WHERE (deleted_at IS NULL AND (name ILIKE $1))")).
		WithArgs("%prop%").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, name, drug_class, default_dose, is_controlled, active, sort_order, created_at, updated_at, deleted_at FROM drugs "+
			"WHERE (deleted_at IS NULL AND (name ILIKE $1)) ORDER BY sort_order ASC, name ASC LIMIT 10")).
		WithArgs("%prop%").
		WillReturnRows(pgxmock.NewRows(drugColumns).
			AddRow(int64(1), "Propofol", "sedative", nil, false, true, int32(0), now, now, nil).
			AddRow(int64(4), "propranolol", "other", nil, false, true, int32(0), now, now, nil))
	mock.ExpectCommit()

	page, err := repo.Paginate(context.Background(), def, masterdata.PageQuery{
		Page: 1, PageSize: 10, Search: "prop", SearchFields: []string{"name"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "Propofol", page.Records[0]["name"])
	assert.Equal(t, int64(4), page.Records[1].ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Get_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	expectColumns(mock, "sentinel_events", sentinelColumn)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sentinel_events WHERE id = $1 AND deleted_at IS NULL LIMIT 1")).
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows(sentinelColumn))

	_, err := repo.Get(context.Background(), loadDef(t, "sentinel_events"), 9)
	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_UndefinedColumnDropsCachedColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "sentinel_events")
	getSQL := regexp.QuoteMeta("FROM sentinel_events WHERE id = $1 AND deleted_at IS NULL LIMIT 1")

	expectColumns(mock, "sentinel_events", sentinelColumn)
	mock.ExpectQuery(getSQL).
		WithArgs(int64(1)).
		WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "severity" does not exist`})

	_, err := repo.Get(context.Background(), def, 1)
	assert.True(t, apperror.HasCode(err, apperror.CodeDatabase))

	// Introspected again on the next call.
	expectColumns(mock, "sentinel_events", sentinelColumn)
	mock.ExpectQuery(getSQL).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(sentinelColumn))

	_, err = repo.Get(context.Background(), def, 1)
	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Create_DuplicateKey(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "drugs")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO drugs (drug_class,name) VALUES ($1,$2) RETURNING id")).
		WithArgs("sedative", "Midazolam").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "drugs_name_key"})

	_, err := repo.Create(context.Background(), def, map[string]any{"name": "Midazolam", "drug_class": "sedative", "ignored": 1})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeDuplicate, appErr.Code)
	assert.Equal(t, apperror.DuplicateMessage("Drug name"), appErr.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Create_UnknownErrorIsDatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO comorbidities")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	_, err := repo.Create(context.Background(), loadDef(t, "comorbidities"), map[string]any{"name": "Asthma"})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeDatabase, appErr.Code)
	assert.Contains(t, appErr.Details["raw"], "disk full")
}

func TestRepo_HardDelete_ForeignKey(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM specialties WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.HardDelete(context.Background(), loadDef(t, "specialties"), 3)
	assert.True(t, apperror.HasCode(err, apperror.CodeParentHasChildren))
}

func TestRepo_Create_MissingReference(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO surgeries (name,specialty_id) VALUES ($1,$2) RETURNING id")).
		WithArgs("Appendectomy", int64(999)).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "surgeries_specialty_id_fkey"})

	_, err := repo.Create(context.Background(), loadDef(t, "surgeries"), map[string]any{
		"name":         "Appendectomy",
		"specialty_id": int64(999),
	})
	require.Error(t, err)
	assert.False(t, apperror.HasCode(err, apperror.CodeParentHasChildren))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
	assert.Equal(t, []apperror.FieldError{{Field: "specialty_id", Message: "Specialty has an invalid selection"}}, appErr.Details["errors"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_Update_MissingReference(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE surgeries SET specialty_id = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL")).
		WithArgs(int64(42), int64(7)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.Update(context.Background(), loadDef(t, "surgeries"), 7, map[string]any{"specialty_id": int64(42)})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_SoftDelete_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE drugs SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL")).
		WithArgs(int64(8)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SoftDelete(context.Background(), loadDef(t, "drugs"), 8)
	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_ToggleActive(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "comorbidities")
	toggleSQL := "UPDATE comorbidities SET active = NOT active, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL RETURNING active"

	mock.ExpectQuery(regexp.QuoteMeta(toggleSQL)).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"active"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(toggleSQL)).
		WithArgs(int64(6)).
		WillReturnError(pgx.ErrNoRows)

	active, err := repo.ToggleActive(context.Background(), def, 5)
	require.NoError(t, err)
	assert.False(t, active)

	_, err = repo.ToggleActive(context.Background(), def, 6)
	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_IsUnique(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "drugs")
	exclude := int64(2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM drugs WHERE name = $1 AND deleted_at IS NULL AND id <> $2 LIMIT 1")).
		WithArgs("Propofol", int64(2)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM drugs WHERE name = $1 AND deleted_at IS NULL LIMIT 1")).
		WithArgs("Midazolam").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	free, err := repo.IsUnique(context.Background(), def, "name", "Propofol", &exclude)
	require.NoError(t, err)
	assert.True(t, free)

	free, err = repo.IsUnique(context.Background(), def, "name", "Midazolam", nil)
	require.NoError(t, err)
	assert.False(t, free)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_ExportCSV(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "drugs")

	// Propofol is soft-deleted, so the live filter leaves only Midazolam.
	expectColumns(mock, "drugs", drugColumns)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, active FROM drugs WHERE deleted_at IS NULL ORDER BY sort_order ASC, name ASC")).
		WillReturnRows(pgxmock.NewRows([]string{"name", "active"}).AddRow("Midazolam", true))

	var buf bytes.Buffer
	require.NoError(t, repo.ExportCSV(context.Background(), def, []string{"name", "active"}, &buf))
	assert.Equal(t, "Drug name,Active\nMidazolam,Yes\n", buf.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_ExportCSV_EmptyStillHasHeader(t *testing.T) {
	repo, mock := newMockRepo(t)
	def := loadDef(t, "drugs")
	created := time.Date(2026, 1, 5, 14, 7, 0, 0, time.UTC)

	expectColumns(mock, "drugs", drugColumns)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, created_at FROM drugs WHERE deleted_at IS NULL")).
		WillReturnRows(pgxmock.NewRows([]string{"name", "created_at"}))

	var buf bytes.Buffer
	require.NoError(t, repo.ExportCSV(context.Background(), def, []string{"name", "created_at"}, &buf))
	assert.Equal(t, "Drug name,Created at\n", buf.String())
	assert.Equal(t, "05/01/2026 14:07", formatCell(def, "created_at", created))
}

func TestRepo_ExportCSV_Rejections(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.ExportCSV(context.Background(), loadDef(t, "removal_indications"), []string{"name"}, &bytes.Buffer{})
	assert.True(t, apperror.HasCode(err, apperror.CodeExportNotSupported))

	expectColumns(mock, "drugs", drugColumns)
	err = repo.ExportCSV(context.Background(), loadDef(t, "drugs"), []string{"name", "deleted_at"}, &bytes.Buffer{})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))
}

func TestRepo_FindByCode_NoCodeColumn(t *testing.T) {
	repo, mock := newMockRepo(t)

	expectColumns(mock, "comorbidities", comorbColumns)
	_, err := repo.FindByCode(context.Background(), loadDef(t, "comorbidities"), "X1")
	assert.True(t, apperror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
