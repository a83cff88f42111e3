package keyword

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/gamerag/types"
)

// newBrokenStore 返回一个底层连接总是报错的 Store。
func newBrokenStore(t *testing.T) *Store {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	mock.ExpectQuery(".*").WillReturnError(errors.New("driver: bad connection"))

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return NewStore(db, DefaultConfig(), nil)
}

func TestSearch_TransportErrorFailsOpen(t *testing.T) {
	t.Parallel()
	s := newBrokenStore(t)

	hits, err := s.Search(context.Background(), "다크로드", nil, 10)
	assert.Empty(t, hits)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeStoreTransport, types.GetErrorCode(err))

	var structured *types.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, types.SourceKeyword, structured.Source)
}

func TestResolveCanonical_TransportError(t *testing.T) {
	t.Parallel()
	s := newBrokenStore(t)

	_, ok, err := s.ResolveCanonical(context.Background(), "아진")
	assert.False(t, ok)
	assert.Equal(t, types.ErrCodeStoreTransport, types.GetErrorCode(err))
}
