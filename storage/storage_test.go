package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-app/madrasa/core/account"
	"github.com/madrasa-app/madrasa/storage"
	"github.com/madrasa-app/madrasa/testutil"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()

	store, err := storage.Open(ctx, conf)
	require.NoError(t, err)
	defer func() { assert.NoError(t, store.Close()) }()

	acc := testutil.CreateAccount(t, store.Accounts, "adam", "adam@test.eg", "", account.RoleStudent, true)
	got, err := store.Accounts.GetAccount(ctx, account.GetFilter{Email: "adam@test.eg"})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	conf.Storage = "cassandra"
	_, err = storage.Open(ctx, conf)
	assert.EqualError(t, err, `unknown storage driver "cassandra"`)
}
