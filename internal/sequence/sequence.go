// Package sequence allocates monotonic per-scope counters inside the caller's
// storage transaction. A scope row is seeded from the highest suffix already
// stored, so legacy rows and deletion gaps never lead to reuse.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/diagcenter/pcledger/pkg/db/models"
)

const (
	scopeMember      = "member:"
	scopeTransaction = "txn:"
)

// SeedFunc returns the highest value already in use for a scope.
type SeedFunc func(tx *gorm.DB) (int64, error)

// MemberScope names the counter behind member codes with the given prefix.
func MemberScope(prefix string) string {
	return scopeMember + prefix
}

// TransactionScope names the counter behind transaction numbers for one date stamp.
func TransactionScope(stamp string) string {
	return scopeTransaction + stamp
}

// ScopeKind returns the scope family ("member" or "txn"), used as a metric label.
func ScopeKind(scope string) string {
	if idx := strings.IndexByte(scope, ':'); idx > 0 {
		return scope[:idx]
	}
	return "unknown"
}

// Next increments the scope's counter and returns the new value. tx must be an
// open transaction; the increment commits or rolls back with it.
func Next(ctx context.Context, tx *gorm.DB, scope string, seed SeedFunc) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("sequence %s: transaction is required", scope)
	}
	db := tx.WithContext(ctx)

	var values []int64
	if err := db.Raw(
		`UPDATE pc_sequences SET last_value = last_value + 1 WHERE scope = ? RETURNING last_value`,
		scope,
	).Scan(&values).Error; err != nil {
		return 0, fmt.Errorf("sequence %s: increment: %w", scope, err)
	}
	if len(values) == 1 {
		return values[0], nil
	}

	var base int64
	if seed != nil {
		seeded, err := seed(db)
		if err != nil {
			return 0, fmt.Errorf("sequence %s: seed: %w", scope, err)
		}
		base = seeded
	}

	// A concurrent writer may insert the row between the update and here; the
	// upsert then increments its value instead.
	values = values[:0]
	if err := db.Raw(
		`INSERT INTO pc_sequences (scope, last_value) VALUES (?, ?)
		 ON CONFLICT (scope) DO UPDATE SET last_value = pc_sequences.last_value + 1
		 RETURNING last_value`,
		scope, base+1,
	).Scan(&values).Error; err != nil {
		return 0, fmt.Errorf("sequence %s: seed insert: %w", scope, err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("sequence %s: seed insert returned %d rows", scope, len(values))
	}
	return values[0], nil
}

// Resync raises the scope's counter to at least the seeded value. Callers use
// it before retrying after a unique violation caused by rows written outside
// the allocator.
func Resync(ctx context.Context, tx *gorm.DB, scope string, seed SeedFunc) error {
	if tx == nil || seed == nil {
		return fmt.Errorf("sequence %s: transaction and seed are required", scope)
	}
	db := tx.WithContext(ctx)

	floor, err := seed(db)
	if err != nil {
		return fmt.Errorf("sequence %s: seed: %w", scope, err)
	}

	row := models.PCSequence{Scope: scope, LastValue: floor}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.Set{{
			Column: clause.Column{Name: "last_value"},
			Value: gorm.Expr(
				"CASE WHEN pc_sequences.last_value < excluded.last_value THEN excluded.last_value ELSE pc_sequences.last_value END",
			),
		}},
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("sequence %s: resync: %w", scope, err)
	}
	return nil
}

// Current reports the last issued value, or zero when the scope is unused.
func Current(ctx context.Context, db *gorm.DB, scope string) (int64, error) {
	var row models.PCSequence
	res := db.WithContext(ctx).Where("scope = ?", scope).Limit(1).Find(&row)
	if res.Error != nil {
		return 0, fmt.Errorf("sequence %s: read: %w", scope, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}
	return row.LastValue, nil
}

// Format concatenates prefix and the zero-padded value.
func Format(prefix string, value int64, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, value)
}

// MaxSuffix returns the largest numeric suffix among values carrying prefix.
// Values with a non-numeric suffix are ignored.
func MaxSuffix(values []string, prefix string) int64 {
	var highest int64
	for _, v := range values {
		if !strings.HasPrefix(v, prefix) {
			continue
		}
		suffix := v[len(prefix):]
		if suffix == "" {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil || n < 0 {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}
