package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/DancingAppsDays/uniprotec-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("user-1", "cd-1", models.EnrollmentStatusCanceled, models.EnrollmentStatusRefunded).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsActive(context.Background(), "user-1", "cd-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{
		UserID:       "user-1",
		CourseDateID: "cd-1",
		Status:       models.EnrollmentStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.NotNil(t, enrollment.Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySetStatusAndMetadata(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	meta := models.Metadata{models.MetaCancellationReason: "schedule clash"}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $1, metadata = $2")).
		WithArgs(models.EnrollmentStatusCanceled, meta, "enrollment-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatusAndMetadata(context.Background(), "enrollment-1", models.EnrollmentStatusCanceled, meta)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkEmailSent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	sentAt := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET email_sent = TRUE")).
		WithArgs(sentAt, "enrollment-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkEmailSent(context.Background(), "enrollment-1", sentAt))
	require.NoError(t, mock.ExpectationsWereMet())
}
