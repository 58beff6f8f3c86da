package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madrasa-app/madrasa/core/account"
)

// RunAccountRepositoryTests checks the behaviour every account.Repository shares. repo must be empty.
func RunAccountRepositoryTests(t *testing.T, repo account.Repository) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := CreateAccount(t, repo, "Zeinab", "zeinab@test.eg", "zeinab-pwd", account.RoleStudent, true, t0)
	second := CreateAccount(t, repo, "tarek", "tarek@test.eg", "", account.RoleTeacher, false, t0.Add(time.Hour))

	t.Run("create", func(t *testing.T) {
		assert.EqualValues(t, 1, first.Version)

		dup := first
		dup.ID, dup.Email = "f0a4a9d6-8a61-4b55-9a3c-2b0f1f9d7a11", "other@test.eg"
		dup.Username = "ZEINAB"
		_, err := repo.CreateAccount(ctx, dup)
		assert.ErrorIs(t, err, account.ErrUsernameExists)

		dup.Username, dup.Email = "other", first.Email
		_, err = repo.CreateAccount(ctx, dup)
		assert.ErrorIs(t, err, account.ErrEmailExists)

		assert.ErrorIs(t, repo.CheckUniqueness(ctx, "zeinab", "x@test.eg"), account.ErrUsernameExists)
		assert.NoError(t, repo.CheckUniqueness(ctx, "zeinab", first.Email, first))

		// username and email taken by different accounts
		for i := 0; i < 10; i++ {
			assert.ErrorIs(t, repo.CheckUniqueness(ctx, second.Username, first.Email), account.ErrUsernameExists)
		}
	})

	t.Run("get", func(t *testing.T) {
		for _, filter := range []account.GetFilter{{ID: first.ID}, {Email: first.Email}, {Username: "zeinab"}} {
			acc, err := repo.GetAccount(ctx, filter)
			require.NoError(t, err)
			assert.Equal(t, first.ID, acc.ID)
			assert.NoError(t, acc.CheckPassword("zeinab-pwd"))
			assert.Nil(t, acc.OTP)
		}
		_, err := repo.GetAccount(ctx, account.GetFilter{Email: "nobody@test.eg"})
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("query", func(t *testing.T) {
		active := false
		accs, err := repo.QueryAccounts(ctx, account.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, accs, 2)
		assert.Equal(t, second.ID, accs[0].ID)

		accs, err = repo.QueryAccounts(ctx, account.QueryFilter{Search: "ZEI"})
		require.NoError(t, err)
		require.Len(t, accs, 1)
		assert.Equal(t, first.ID, accs[0].ID)

		accs, err = repo.QueryAccounts(ctx, account.QueryFilter{Roles: []string{account.RoleTeacher}, IsActive: &active})
		require.NoError(t, err)
		require.Len(t, accs, 1)
		assert.Equal(t, second.ID, accs[0].ID)

		accs, err = repo.QueryAccounts(ctx, account.QueryFilter{Search: "50%_off"})
		require.NoError(t, err)
		assert.Empty(t, accs)
	})

	t.Run("conditional update", func(t *testing.T) {
		acc, err := repo.GetAccount(ctx, account.GetFilter{ID: first.ID})
		require.NoError(t, err)

		acc.IsVerified = true
		acc.OTP = &account.OTPChallenge{
			Code:           "482913",
			IssuedAt:       t0,
			ExpiresAt:      t0.Add(10 * time.Minute),
			PreVerified:    true,
			FailedAttempts: 2,
		}
		updated, err := repo.UpdateAccount(ctx, acc)
		require.NoError(t, err)
		assert.Equal(t, acc.Version+1, updated.Version)

		stored, err := repo.GetAccount(ctx, account.GetFilter{ID: first.ID})
		require.NoError(t, err)
		assert.Equal(t, updated.Version, stored.Version)
		assert.True(t, stored.IsVerified)
		require.NotNil(t, stored.OTP)
		assert.Equal(t, "482913", stored.OTP.Code)
		assert.True(t, stored.OTP.ExpiresAt.Equal(t0.Add(10*time.Minute)))
		assert.True(t, stored.OTP.PreVerified)
		assert.Equal(t, 2, stored.OTP.FailedAttempts)

		// acc still holds the previous version
		_, err = repo.UpdateAccount(ctx, acc)
		assert.ErrorIs(t, err, account.ErrVersionConflict)

		missing := acc
		missing.ID = "0b9c1a52-3c1e-4d0b-8f5e-6f2b8f1f0c33"
		_, err = repo.UpdateAccount(ctx, missing)
		assert.ErrorIs(t, err, account.ErrNotFound)
	})

	t.Run("purge", func(t *testing.T) {
		n, err := repo.PurgeExpiredOTPs(ctx, t0.Add(10*time.Minute))
		require.NoError(t, err)
		assert.Zero(t, n, "a challenge is still valid at its expiry instant")

		before, err := repo.GetAccount(ctx, account.GetFilter{ID: first.ID})
		require.NoError(t, err)

		n, err = repo.PurgeExpiredOTPs(ctx, t0.Add(11*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		after, err := repo.GetAccount(ctx, account.GetFilter{ID: first.ID})
		require.NoError(t, err)
		assert.Nil(t, after.OTP)
		assert.Greater(t, after.Version, before.Version)
	})
}
