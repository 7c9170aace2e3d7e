package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a shop or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrShopNameTaken is returned when creating a shop whose normalized
	// name already exists.
	ErrShopNameTaken = errors.New("shop name already taken")

	// ErrDuplicateOrder signals a (shop_id, source_order_id) collision on
	// insert. The engine treats it as an idempotent retry, not a failure.
	ErrDuplicateOrder = errors.New("duplicate source order")
)

// isUniqueViolation inspects the sqlite error codes instead of matching on
// message text, so callers get a stable conflict signal.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
