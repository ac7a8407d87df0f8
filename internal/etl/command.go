package etl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// QueryKind is the declared kind of a Query, used to tally load statistics.
type QueryKind string

const (
	Insert QueryKind = "Insert"
	Update QueryKind = "Update"
	Delete QueryKind = "Delete"
)

// Command is a unit of load work. Loaders understand *Query and
// *CallbackQuery; anything else is rejected at load time.
type Command interface {
	Describe() string
}

// Query is a single parameterized statement. SQL uses @name placeholders
// bound from Params.
type Query struct {
	Kind   QueryKind
	SQL    string
	Params pgx.NamedArgs
}

func NewQuery(kind QueryKind, sql string, params pgx.NamedArgs) *Query {
	return &Query{Kind: kind, SQL: sql, Params: params}
}

func (q *Query) Describe() string {
	return fmt.Sprintf("%s query", q.Kind)
}

// LogEntry is the structured record of an executed Query kept for auditing.
func (q *Query) LogEntry() map[string]any {
	return map[string]any{"q": string(q.Kind), "p": map[string]any(q.Params)}
}

// Stats is what a CallbackQuery reports back to the loader.
type Stats struct {
	Insert int
	Update int
	Delete int
	Log    any
}

func (s Stats) Total() int {
	return s.Insert + s.Update + s.Delete
}

// CallbackFunc does arbitrary work inside the load transaction.
type CallbackFunc func(ctx context.Context, tx pgx.Tx) (Stats, error)

// CallbackQuery wraps work that cannot be expressed as one statement, such as
// an insert whose returned id feeds dependent inserts.
type CallbackQuery struct {
	Name string
	fn   CallbackFunc
}

func NewCallbackQuery(name string, fn CallbackFunc) *CallbackQuery {
	return &CallbackQuery{Name: name, fn: fn}
}

func (c *CallbackQuery) Describe() string {
	if c.Name == "" {
		return "callback query"
	}
	return "callback query " + c.Name
}

func (c *CallbackQuery) Execute(ctx context.Context, tx pgx.Tx) (Stats, error) {
	if c.fn == nil {
		return Stats{}, nil
	}
	return c.fn(ctx, tx)
}
