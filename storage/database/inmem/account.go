package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/madrasa-app/madrasa/core/account"
)

type accountRepository struct {
	db *accountTable
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db.account}
}

// find must be called with the lock held.
func (repo *accountRepository) find(filter account.GetFilter) (*account.Account, bool) {
	if filter.ID != "" {
		acc, ok := repo.db.table[filter.ID]
		return acc, ok
	}
	for _, acc := range repo.db.table {
		switch {
		case filter.Email != "" && acc.Email == filter.Email,
			filter.Email == "" && filter.Username != "" && strings.EqualFold(acc.Username, filter.Username):
			return acc, true
		}
	}
	return nil, false
}

func (repo *accountRepository) CheckUniqueness(_ context.Context, username, email string, excluded ...account.Account) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.checkUniqueness(username, email, excluded...)
}

// checkUniqueness reports a taken username before a taken email.
func (repo *accountRepository) checkUniqueness(username, email string, excluded ...account.Account) error {
	var emailTaken bool
	for id, acc := range repo.db.table {
		if isExcluded(id, excluded) {
			continue
		}
		if strings.EqualFold(acc.Username, username) {
			return account.ErrUsernameExists
		}
		if acc.Email == email {
			emailTaken = true
		}
	}
	if emailTaken {
		return account.ErrEmailExists
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if err := repo.checkUniqueness(acc.Username, acc.Email); err != nil {
		return account.Account{}, err
	}
	acc.Version = 1
	stored := acc.Clone()
	repo.db.table[acc.ID] = &stored
	return acc, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.find(filter); ok {
		return acc.Clone(), nil
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) QueryAccounts(_ context.Context, filter account.QueryFilter) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	accounts := make([]account.Account, 0, len(repo.db.table))
	for _, acc := range repo.db.table {
		if search != "" && !strings.Contains(strings.ToLower(acc.Username), search) && !strings.Contains(acc.Email, search) {
			continue
		}
		if filter.Roles != nil && !acc.HasRole(filter.Roles...) {
			continue
		}
		if filter.IsActive != nil && acc.IsActive != *filter.IsActive {
			continue
		}
		accounts = append(accounts, acc.Clone())
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.After(accounts[j].CreatedAt) })
	return accounts, nil
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acc account.Account) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[acc.ID]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	if orig.Version != acc.Version {
		return account.Account{}, account.ErrVersionConflict
	}
	if err := repo.checkUniqueness(acc.Username, acc.Email, acc); err != nil {
		return account.Account{}, err
	}
	acc.Version++
	stored := acc.Clone()
	repo.db.table[acc.ID] = &stored
	return acc, nil
}

func (repo *accountRepository) PurgeExpiredOTPs(_ context.Context, now time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, acc := range repo.db.table {
		if acc.OTP != nil && acc.OTP.Expired(now) {
			acc.OTP = nil
			acc.Version++
			n++
		}
	}
	return n, nil
}

func isExcluded(id string, excluded []account.Account) bool {
	for _, acc := range excluded {
		if acc.ID == id {
			return true
		}
	}
	return false
}
