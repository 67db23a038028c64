package connectiondao

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/tj/assert"
)

func withTable(t *testing.T, callback func(ctx context.Context, dao *DAO)) {
	endpoint := os.Getenv("DYNAMODB_ENDPOINT")
	if endpoint == "" {
		t.Skip("DYNAMODB_ENDPOINT not set")
	}

	var (
		s = session.Must(session.NewSession(aws.NewConfig().
			WithCredentials(credentials.NewStaticCredentials("blah", "blah", "")).
			WithEndpoint(endpoint).
			WithRegion("us-west-2")))
		api       = dynamodb.New(s)
		tableName = fmt.Sprintf("table-%v", time.Now().UnixNano())
		dao       = New(api, tableName)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := dao.Table().CreateTableIfNotExists(ctx)
	assert.Nil(t, err)
	defer dao.Table().DeleteTableIfExists(ctx)

	callback(ctx, dao)
}

func TestDAO(t *testing.T) {
	withTable(t, func(ctx context.Context, dao *DAO) {
		want := Connection{
			ConnectionID: "abc",
			UserID:       "42",
			RemoteAddr:   "127.0.0.1:5555",
			ConnectedAt:  time.Now().Unix(),
			TTL:          time.Now().Add(time.Hour).Unix(),
		}

		err := dao.Put(ctx, want)
		assert.Nil(t, err)

		got, err := dao.Get(ctx, want.ConnectionID)
		assert.Nil(t, err)
		assert.Equal(t, want, *got)

		err = dao.Delete(ctx, want.ConnectionID)
		assert.Nil(t, err)

		_, err = dao.Get(ctx, want.ConnectionID)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestPutRequiresID(t *testing.T) {
	err := (&DAO{}).Put(context.Background(), Connection{UserID: "42"})
	assert.NotNil(t, err)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "dev-finura--ws-connections", TableName("dev"))
}
