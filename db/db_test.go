package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ziksir-notes/config"
	"ziksir-notes/store"
)

type unreachableStore struct {
	*store.MemoryStore
	pings int
}

func (s *unreachableStore) Ping(context.Context) error {
	s.pings++
	return errors.New("connection refused")
}

func TestMySQLDSNForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("user:pass@tcp(localhost:3306)/notes")
	require.NoError(t, err)
	assert.True(t, strings.Contains(dsn, "parseTime=true"), dsn)

	_, err = mysqlDSN("not a dsn")
	assert.Error(t, err)
}

func TestConnectMemory(t *testing.T) {
	log, hook := test.NewNullLogger()

	s, sqlDB, err := Connect(context.Background(), config.Config{DBDriver: config.DriverMemory}, log)
	require.NoError(t, err)
	assert.Nil(t, sqlDB)
	assert.IsType(t, &store.MemoryStore{}, s)
	assert.Len(t, hook.Entries, 1)
}

func TestConnectUnsupportedDriver(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, _, err := Connect(context.Background(), config.Config{DBDriver: "sqlite"}, log)
	assert.Error(t, err)
}

func TestPingWithRetryStopsOnCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := &unreachableStore{MemoryStore: store.NewMemoryStore()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pingWithRetry(ctx, s, log)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.pings)
}
