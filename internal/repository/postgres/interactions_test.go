package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/validator"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func testRecord(id, hash string) domain.Record {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.Record{
		NormalizedRecord: domain.NormalizedRecord{
			ExternalID:      id,
			AuthorID:        "jdoe",
			Text:            "my order is late",
			CreatedAt:       "2024-03-01T10:00:00Z",
			CreatedAtParsed: &ts,
			Language:        "en",
			Mentions:        []string{"acme_help"},
		},
		ConversationID:    "conv_00000001",
		ThreadPosition:    0,
		IsCustomerMessage: true,
		ConversationType:  "customer_inquiry",
		TotalMessages:     1,
		CustomerMessages:  1,
		Participants:      1,
		RecordHash:        hash,
		QualityScore:      1.0,
		SourceID:          "twitter_csv",
	}
}

func TestExistingHashes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT record_hash FROM customer_interactions").
		WillReturnRows(sqlmock.NewRows([]string{"record_hash"}).AddRow("aa").AddRow("bb"))

	repo := NewInteractionRepo(db)
	existing, err := repo.ExistingHashes(context.Background(), []string{"aa", "bb", "cc"})
	require.NoError(t, err)
	assert.Len(t, existing, 2)
	_, ok := existing["aa"]
	assert.True(t, ok)
	_, ok = existing["cc"]
	assert.False(t, ok)
}

func TestExistingHashesEmptyInput(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewInteractionRepo(db)
	existing, err := repo.ExistingHashes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestInsertBatch(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// "bb" is already stored, so only "aa" inserts.
	mock.ExpectQuery("SELECT record_hash FROM customer_interactions").
		WillReturnRows(sqlmock.NewRows([]string{"record_hash"}).AddRow("bb"))
	mock.ExpectPrepare("INSERT INTO customer_interactions").
		ExpectExec().
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInteractionRepo(db)
	result, err := repo.InsertBatch(context.Background(), []domain.Record{
		testRecord("1", "aa"),
		testRecord("2", "bb"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 0, result.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchRowErrorDoesNotFailBatch(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT record_hash FROM customer_interactions").
		WillReturnRows(sqlmock.NewRows([]string{"record_hash"}))
	prepare := mock.ExpectPrepare("INSERT INTO customer_interactions")
	prepare.ExpectExec().WillReturnError(errors.New("value too long"))
	prepare.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInteractionRepo(db)
	result, err := repo.InsertBatch(context.Background(), []domain.Record{
		testRecord("1", "aa"),
		testRecord("2", "bb"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Errors)
}

func TestInsertBatchEmpty(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewInteractionRepo(db)
	result, err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.InsertResult{}, result)
}

func TestRecordQualityMetrics(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO quality_metrics").
		WithArgs("batch_20240301_100000_0001", "twitter_csv", 10, 8, 2,
			0.85, 0.8, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInteractionRepo(db)
	report := validator.BatchReport{
		Total:       10,
		Valid:       8,
		Invalid:     2,
		AvgScore:    0.85,
		IssueCounts: map[string]int{"empty_text": 2},
	}
	err := repo.RecordQualityMetrics(context.Background(), "batch_20240301_100000_0001", "twitter_csv", report)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
