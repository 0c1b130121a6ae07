package database

import (
	"github.com/huandu/go-sqlbuilder"
)

// InsertBuilder is a PostgreSQL-flavored insert builder whose chained calls keep the wrapper type.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
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

func (ib *InsertBuilder) Returning(col ...string) *InsertBuilder {
	return &InsertBuilder{ib.InsertBuilder.Returning(col...)}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}

// LeftJoin adds a LEFT JOIN so unresolved references come back as NULL columns instead of
// silently dropping the row.
func (sb *SelectBuilder) LeftJoin(table string, onExpr ...string) *SelectBuilder {
	sb.SelectBuilder.JoinWithOption(sqlbuilder.LeftJoin, table, onExpr...)
	return sb
}
