package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

type Repository struct {
	DB            *sql.DB
	GoquDBWrapper *goqu.Database
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		DB:            db,
		GoquDBWrapper: goqu.New("postgres", db),
	}
}

// Querier is implemented by both *goqu.Database and *goqu.TxDatabase so the
// same query code runs inside or outside a transaction.
type Querier interface {
	From(from ...interface{}) *goqu.SelectDataset
	Select(cols ...interface{}) *goqu.SelectDataset
	Insert(table interface{}) *goqu.InsertDataset
	Update(table interface{}) *goqu.UpdateDataset
	Delete(table interface{}) *goqu.DeleteDataset
}

// Conn returns tx when one is open and the pooled database otherwise.
func (r *Repository) Conn(tx *goqu.TxDatabase) Querier {
	if tx != nil {
		return tx
	}
	return r.GoquDBWrapper
}

// Transactor runs fn inside a single database transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error {
	return WithTransaction(ctx, r.GoquDBWrapper, fn)
}

func WithTransaction(ctx context.Context, db *goqu.Database, fn func(tx *goqu.TxDatabase) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return
}

// ForUpdate locks the selected rows until the surrounding transaction ends.
func ForUpdate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	return ds.ForUpdate(exp.Wait)
}

// ForUpdateOf locks only the rows of the aliased table in a joined select.
func ForUpdateOf(ds *goqu.SelectDataset, alias string) *goqu.SelectDataset {
	return ds.ForUpdate(exp.Wait, goqu.T(alias))
}
