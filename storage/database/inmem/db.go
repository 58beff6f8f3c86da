// Package inmemdb is a process-local account store, used in tests and with the "memory" storage driver.
package inmemdb

import (
	"sync"

	"github.com/madrasa-app/madrasa/core/account"
)

type accountTable struct {
	mutex sync.RWMutex
	table map[string]*account.Account // {id: account}
}

type DB struct {
	account *accountTable
}

func NewDB() *DB {
	return &DB{
		account: &accountTable{table: make(map[string]*account.Account)},
	}
}

// Close is a no-op that lets DB stand in for the other stores.
func (db *DB) Close() error { return nil }
