package query

import (
	"context"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/internal/observability"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// Select builds a read query over one table. Modifiers return the same
// builder; each terminal call consumes the plan and resets it.
type Select struct {
	env   Env
	table string
	plan  Plan
}

// NewSelect starts a select on table.
func NewSelect(env Env, table string) *Select {
	return &Select{env: env, table: table, plan: NewPlan()}
}

// Where adds an in-memory predicate.
func (s *Select) Where(pred Predicate) *Select {
	s.plan.Predicate = pred
	return s
}

// WhereIndex restricts the query to key values of the primary key or a
// declared index. value is either a *hostdb.KeyRange or a single key; a
// nil value fails at the terminal call.
func (s *Select) WhereIndex(name string, value interface{}) *Select {
	r, ok := value.(*hostdb.KeyRange)
	if !ok && value != nil {
		r = hostdb.Only(value)
	}
	s.plan.Index = &IndexFilter{Name: name, Range: r}
	return s
}

// SortByIndex orders by an index or the primary key, traversing it with a
// cursor when possible.
func (s *Select) SortByIndex(key string, dir types.Direction) *Select {
	s.plan.Sort = &SortSpec{Key: key, Direction: dir, UseIndex: true}
	return s
}

// OrderBy sorts results in memory by a dotted field path.
func (s *Select) OrderBy(path string, dir types.Direction) *Select {
	s.plan.Sort = &SortSpec{Key: path, Direction: dir}
	return s
}

// Fields sets the projection.
func (s *Select) Fields(fields map[string]bool) *Select {
	s.plan.Projection = NewProjection(fields)
	return s
}

// Limit caps the number of results. Negative means no limit.
func (s *Select) Limit(n int) *Select {
	if n < 0 {
		n = -1
	}
	s.plan.Limit = n
	return s
}

func (s *Select) take() Plan {
	p := s.plan
	s.plan = NewPlan()
	return p
}

// Explain returns the strategy the current plan would use without
// consuming it.
func (s *Select) Explain() (Strategy, error) {
	_, desc, err := s.env.Catalog.Table(s.table)
	if err != nil {
		return Strategy{}, err
	}
	return Choose(s.plan, desc)
}

func (s *Select) record(st Strategy) {
	s.env.Stats.RecordAccess(s.table, st.Path)
	if st.Path != observability.PathFullScan {
		s.env.Stats.RecordKeyPath(s.table, st.KeyPath, st.Path)
	}
}

// FindAll runs the query and returns every matching record.
func (s *Select) FindAll(ctx context.Context) ([]types.Record, error) {
	plan := s.take()
	_, desc, err := s.env.Catalog.Table(s.table)
	if err != nil {
		return nil, err
	}
	st, err := Choose(plan, desc)
	if err != nil {
		return nil, err
	}

	var records []types.Record
	err = s.env.Binding.Run(ctx, s.table, hostdb.ReadOnly, func(ctx context.Context, c hostdb.Collection) error {
		var err error
		records, err = execute(ctx, c, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(st)
	return project(records, plan.Projection), nil
}

// First returns the first matching record.
func (s *Select) First(ctx context.Context) (types.Record, bool, error) {
	s.plan.Limit = 1
	records, err := s.FindAll(ctx)
	if err != nil || len(records) == 0 {
		return nil, false, err
	}
	return records[0], true, nil
}

// FindByPk fetches one record by primary key. Only the projection of the
// plan applies.
func (s *Select) FindByPk(ctx context.Context, key interface{}) (types.Record, bool, error) {
	plan := s.take()
	if _, _, err := s.env.Catalog.Table(s.table); err != nil {
		return nil, false, err
	}
	if !hostdb.IsValidKey(key) {
		return nil, false, arkerrors.NewQueryError(arkerrors.CodeInvalidQuery, "invalid primary key value")
	}

	var rec types.Record
	var found bool
	err := s.env.Binding.Run(ctx, s.table, hostdb.ReadOnly, func(ctx context.Context, c hostdb.Collection) error {
		var err error
		rec, found, err = c.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.env.Stats.RecordAccess(s.table, observability.PathPrimaryKeyGet)
	if !found {
		return nil, false, nil
	}
	return plan.Projection.Apply(rec), true, nil
}

// Count returns the number of matching records. Without a predicate the
// host counts natively, within the index range if one is set; with a
// predicate every record is scanned.
func (s *Select) Count(ctx context.Context) (int, error) {
	plan := s.take()
	_, desc, err := s.env.Catalog.Table(s.table)
	if err != nil {
		return 0, err
	}

	var index, keyPath string
	var r *hostdb.KeyRange
	if plan.Index != nil {
		if err := plan.Index.validate(); err != nil {
			return 0, err
		}
		if index, keyPath, err = resolveKey(desc, plan.Index.Name); err != nil {
			return 0, err
		}
		r = plan.Index.Range
	}

	var n int
	path := observability.PathNativeCount
	if plan.Predicate != nil {
		path = observability.PathFullScan
	}
	err = s.env.Binding.Run(ctx, s.table, hostdb.ReadOnly, func(ctx context.Context, c hostdb.Collection) error {
		if plan.Predicate == nil {
			src, err := sourceOf(c, index)
			if err != nil {
				return err
			}
			n, err = src.Count(ctx, r)
			return err
		}

		records, err := c.GetAll(ctx, nil, 0)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if r != nil {
				k, ok := hostdb.KeyOf(rec, keyPath)
				if !ok || !r.Includes(k) {
					continue
				}
			}
			if plan.Predicate(rec) {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.env.Stats.RecordAccess(s.table, path)
	return n, nil
}

// Exists reports whether Count would be positive.
func (s *Select) Exists(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}
