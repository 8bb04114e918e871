package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// InsertBuilder wraps the PostgreSQL insert builder with conflict-clause
// support, since go-sqlbuilder has no first-class ON CONFLICT API.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflictDoNothing makes the insert a no-op when the given columns collide.
// With no columns the clause applies to any constraint.
func (ib *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	if len(columns) > 0 {
		ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(columns, ", ")))
	} else {
		ib.SQL("ON CONFLICT DO NOTHING")
	}
	return ib
}

func (ib *InsertBuilder) InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.InsertInto(table)}
}

func (ib *InsertBuilder) Cols(col ...string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Cols(col...)}
}

func (ib *InsertBuilder) Values(value ...any) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Values(value...)}
}
