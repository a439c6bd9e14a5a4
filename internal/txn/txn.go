// Package txn runs callbacks inside one host scope shared by every builder
// the callback obtains. The scope commits when the callback returns nil and
// aborts otherwise.
package txn

import (
	"context"
	"fmt"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/query"
	"github.com/arkilian/arkdb/pkg/hostdb"
)

// Tx hands out builders bound to a transaction scope.
type Tx struct {
	env    query.Env
	scope  hostdb.Scope
	tables []string
}

// Tables returns the tables the transaction was opened over.
func (tx *Tx) Tables() []string {
	return append([]string(nil), tx.tables...)
}

// Mode returns the scope's access mode.
func (tx *Tx) Mode() hostdb.Mode { return tx.scope.Mode() }

// Select starts a read on table that runs inside the transaction's scope.
func (tx *Tx) Select(table string) *query.Select { return query.NewSelect(tx.env, table) }

// Insert starts an insert on table inside the scope. It is only committed
// with the transaction.
func (tx *Tx) Insert(table string) *query.Insert { return query.NewInsert(tx.env, table) }

// Update starts an update on table inside the scope.
func (tx *Tx) Update(table string) *query.Update { return query.NewUpdate(tx.env, table) }

// Delete starts a delete on table inside the scope.
func (tx *Tx) Delete(table string) *query.Delete { return query.NewDelete(tx.env, table) }

// Run executes fn in a readwrite scope over tables. If fn returns an error
// or panics the scope is aborted and the error (or panic) is passed on
// unchanged. Otherwise Run commits and returns once the host has reported
// the outcome; a host-side abort is returned as a TransactionAbortError.
func Run(ctx context.Context, env query.Env, tables []string, fn func(*Tx) error) error {
	return run(ctx, env, tables, hostdb.ReadWrite, fn)
}

// View is Run over a readonly scope. Writes through its builders fail.
func View(ctx context.Context, env query.Env, tables []string, fn func(*Tx) error) error {
	return run(ctx, env, tables, hostdb.ReadOnly, fn)
}

func run(ctx context.Context, env query.Env, tables []string, mode hostdb.Mode, fn func(*Tx) error) error {
	if len(tables) == 0 {
		return arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "transaction requires at least one table")
	}
	if err := env.Catalog.Ready(ctx); err != nil {
		return err
	}
	for _, t := range tables {
		if _, _, err := env.Catalog.Table(t); err != nil {
			return err
		}
	}

	scope, err := env.Catalog.Engine().Begin(ctx, tables, mode)
	if err != nil {
		return query.HostError(err)
	}

	tx := &Tx{scope: scope, tables: append([]string(nil), tables...)}
	tx.env = query.Env{
		Catalog: env.Catalog,
		Binding: query.ScopeBinding(scope, tables),
		Stats:   env.Stats,
	}

	defer func() {
		if p := recover(); p != nil {
			scope.Abort()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		scope.Abort()
		return err
	}

	select {
	case <-scope.Done():
		// A failed request already rolled the scope back.
		return arkerrors.NewTransactionAbortError(scope.Err())
	default:
	}
	if err := ctx.Err(); err != nil {
		scope.Abort()
		return arkerrors.NewTransactionAbortError(fmt.Errorf("txn: %w", err))
	}

	if err := scope.Commit(); err != nil {
		return query.HostError(err)
	}
	<-scope.Done()
	if err := scope.Err(); err != nil {
		return arkerrors.NewTransactionAbortError(err)
	}
	return nil
}
