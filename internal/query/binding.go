package query

import (
	"context"
	"errors"
	"fmt"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

// Catalog resolves table declarations and provides the provisioned engine.
// connection.Manager implements it.
type Catalog interface {
	Ready(ctx context.Context) error
	Engine() hostdb.Engine
	Table(name string) (*schema.Table, types.CollectionDescriptor, error)
	KeyPath(table string) (string, error)
}

// Binding supplies the scope a terminal call runs in.
type Binding interface {
	// Run calls fn with the named collection inside a scope of at least
	// the given mode. A non-nil error means nothing fn wrote is kept
	// unless the binding belongs to a caller-managed transaction.
	Run(ctx context.Context, table string, mode hostdb.Mode, fn func(ctx context.Context, c hostdb.Collection) error) error
}

// Env is what a builder needs to execute.
type Env struct {
	Catalog Catalog
	Binding Binding
	Stats   *observability.QueryStats
}

// Implicit returns a binding that opens a single-operation scope per
// terminal call and commits it when the call succeeds.
func Implicit(cat Catalog) Binding {
	return implicitBinding{cat: cat}
}

type implicitBinding struct {
	cat Catalog
}

func (b implicitBinding) Run(ctx context.Context, table string, mode hostdb.Mode, fn func(context.Context, hostdb.Collection) error) error {
	if err := b.cat.Ready(ctx); err != nil {
		return err
	}
	scope, err := b.cat.Engine().Begin(ctx, []string{table}, mode)
	if err != nil {
		return HostError(err)
	}

	c, err := scope.Collection(table)
	if err == nil {
		err = fn(ctx, c)
	}
	if err != nil {
		scope.Abort()
		return HostError(err)
	}

	if err := scope.Commit(); err != nil {
		return HostError(err)
	}
	<-scope.Done()
	if err := scope.Err(); err != nil {
		return arkerrors.NewTransactionAbortError(err)
	}
	return nil
}

// ScopeBinding returns a binding that runs every call in scope, which the
// caller commits or aborts. Tables outside the given set are rejected.
func ScopeBinding(scope hostdb.Scope, tables []string) Binding {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return scopeBinding{scope: scope, tables: set}
}

type scopeBinding struct {
	scope  hostdb.Scope
	tables map[string]bool
}

func (b scopeBinding) Run(ctx context.Context, table string, mode hostdb.Mode, fn func(context.Context, hostdb.Collection) error) error {
	if !b.tables[table] {
		return arkerrors.New(arkerrors.ErrCategoryTransaction, arkerrors.CodeOutOfScope,
			fmt.Sprintf("table %q is not part of this transaction", table)).
			WithDetails(map[string]interface{}{"table": table})
	}
	if mode == hostdb.ReadWrite && b.scope.Mode() != hostdb.ReadWrite {
		return arkerrors.NewQueryError(arkerrors.CodeInvalidQuery,
			fmt.Sprintf("write to %q inside a readonly transaction", table))
	}
	select {
	case <-b.scope.Done():
		return arkerrors.Wrap(arkerrors.ErrCategoryTransaction, arkerrors.CodeScopeFinished,
			"transaction scope finished", b.scope.Err())
	default:
	}

	c, err := b.scope.Collection(table)
	if err != nil {
		return HostError(err)
	}
	if err := fn(ctx, c); err != nil {
		return HostError(err)
	}
	return nil
}

// HostError translates host engine errors into the arkdb taxonomy. Errors
// that already belong to it are returned unchanged.
func HostError(err error) error {
	if err == nil {
		return nil
	}
	var ae *arkerrors.ArkError
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, hostdb.ErrConstraint), errors.Is(err, hostdb.ErrAborted), errors.Is(err, hostdb.ErrData):
		return arkerrors.NewTransactionAbortError(err)
	case errors.Is(err, hostdb.ErrInactive):
		return arkerrors.Wrap(arkerrors.ErrCategoryTransaction, arkerrors.CodeScopeFinished,
			"transaction scope finished", err)
	case errors.Is(err, hostdb.ErrUnavailable):
		return arkerrors.NewHostUnavailableError("host engine unavailable", err)
	case errors.Is(err, hostdb.ErrNotFound):
		return arkerrors.Wrap(arkerrors.ErrCategorySchema, arkerrors.CodeTableNotFound,
			"collection not provisioned", err)
	}
	return err
}
