package db

import (
	"context"
	"errors"
	"testing"

	"github.com/omnibridge/omnibridge-service/models"
	"github.com/omnibridge/omnibridge-service/omni"
	"github.com/omnibridge/omnibridge-service/utils/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorageMemory(t *testing.T) {
	s, err := NewStorage(Config{Database: MemoryDB})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.AddDeposit(ctx, &models.PendingDeposit{Chain: omni.Ton, Nonce: "1", Status: models.DepositStatusNonceResolved}))
	d, err := s.GetDeposit(ctx, omni.Ton, "1")
	require.NoError(t, err)
	assert.Equal(t, models.DepositStatusNonceResolved, d.Status)

	require.NoError(t, RunMigrations(Config{Database: MemoryDB}))
}

func TestNewStorageUnknown(t *testing.T) {
	_, err := NewStorage(Config{Database: "leveldb"})
	assert.True(t, errors.Is(err, gerror.ErrStorageNotRegister))
}
