package repository

import (
	"errors"
	"fmt"

	"ecommerce-order-service/internal/apperror"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("%s %s not found", entity, id)
	}
	return fmt.Errorf("find %s %s: %w", entity, id, err)
}

// forUpdate adds a row lock. The sqlite dialect drops the clause, there the
// immediate transaction lock serializes writers instead.
func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
