package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresRepository(db)
	q := `(?s)INSERT INTO audit_logs \(user_id, action, details, ip_address, user_agent\).*RETURNING id, created_at`
	now := time.Now()

	mock.ExpectQuery(q).
		WithArgs(int64(1), models.ActionUploadFiles, []byte(`{"count":2,"folderId":null}`), "10.0.0.1", "curl/8").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))
	mock.ExpectQuery(q).
		WithArgs(int64(1), models.ActionDeleteFile, nil, "", "").
		WillReturnError(errors.New("insert failed"))

	e := &models.AuditEntry{
		UserID:    1,
		Action:    models.ActionUploadFiles,
		Details:   map[string]any{"count": 2, "folderId": nil},
		IPAddress: "10.0.0.1",
		UserAgent: "curl/8",
	}
	require.NoError(t, repo.Insert(context.Background(), e))
	assert.Equal(t, int64(11), e.ID)
	assert.Equal(t, now, e.CreatedAt)

	err = repo.Insert(context.Background(), &models.AuditEntry{UserID: 1, Action: models.ActionDeleteFile})
	assert.ErrorIs(t, err, common.ErrDatabase)

	require.NoError(t, mock.ExpectationsWereMet())
}
