package userdao

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/tj/assert"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *DAO) {
	db, mock, err := sqlmock.New()
	assert.Nil(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, New(db)
}

func TestListActive(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		mock, dao := setupMockDB(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id::text FROM users WHERE is_active = true")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1").AddRow("2"))

		ids, err := dao.ListActive(context.Background())
		assert.Nil(t, err)
		assert.Equal(t, []string{"1", "2"}, ids)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock, dao := setupMockDB(t)
		mock.ExpectQuery("SELECT id::text FROM users").WillReturnError(errors.New("boom"))

		_, err := dao.ListActive(context.Background())
		assert.NotNil(t, err)
	})
}

func TestListAll(t *testing.T) {
	mock, dao := setupMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id::text FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	ids, err := dao.ListAll(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestDeactivate(t *testing.T) {
	t.Run("batched", func(t *testing.T) {
		mock, dao := setupMockDB(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_active = false WHERE id::text IN ($1,$2,$3)")).
			WithArgs("a", "b", "c").
			WillReturnResult(sqlmock.NewResult(0, 3))

		n, err := dao.Deactivate(context.Background(), []string{"a", "b", "c"})
		assert.Nil(t, err)
		assert.EqualValues(t, 3, n)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to do", func(t *testing.T) {
		mock, dao := setupMockDB(t)

		n, err := dao.Deactivate(context.Background(), nil)
		assert.Nil(t, err)
		assert.EqualValues(t, 0, n)
		assert.Nil(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock, dao := setupMockDB(t)
		mock.ExpectExec("UPDATE users").WillReturnError(errors.New("boom"))

		_, err := dao.Deactivate(context.Background(), []string{"a"})
		assert.NotNil(t, err)
	})
}

func TestSetActive(t *testing.T) {
	mock, dao := setupMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_active = $1 WHERE id::text = $2")).
		WithArgs(false, "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_active = $1 WHERE id::text = $2")).
		WithArgs(false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := dao.SetActive(context.Background(), "a", false)
	assert.Nil(t, err)
	assert.True(t, ok)

	ok, err = dao.SetActive(context.Background(), "missing", false)
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.Nil(t, mock.ExpectationsWereMet())
}
