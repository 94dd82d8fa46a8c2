package db

import (
	"fmt"
	"strings"
)

// SelectQuery builds a filtered SELECT with a matching COUNT so list
// endpoints and CSV exports run the same WHERE clause.
type SelectQuery struct {
	from    string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSelectQuery creates a query over from (a table or join expression).
func NewSelectQuery(from, cols string) *SelectQuery {
	return &SelectQuery{from: from, cols: cols, idx: 1}
}

// Idx returns the next available parameter index.
func (q *SelectQuery) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND") whose
// placeholders start at Idx().
func (q *SelectQuery) Add(clause string, args ...interface{}) *SelectQuery {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
	return q
}

// Eq adds column = value when value is non-empty.
func (q *SelectQuery) Eq(column, value string) *SelectQuery {
	if value == "" {
		return q
	}
	return q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// Search adds a case-insensitive substring match across columns.
func (q *SelectQuery) Search(term string, columns ...string) *SelectQuery {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return q
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", col, q.idx)
	}
	q.where += " AND (" + strings.Join(parts, " OR ") + ")"
	q.args = append(q.args, "%"+escapeLike(term)+"%")
	q.idx++
	return q
}

// OnDate matches rows whose timestamp column falls on the given YYYY-MM-DD.
func (q *SelectQuery) OnDate(column, date string) *SelectQuery {
	if date == "" {
		return q
	}
	return q.Add(fmt.Sprintf("%s::date = $%d::date", column, q.idx), date)
}

// Between restricts a timestamp column to [from, to] dates, either bound optional.
func (q *SelectQuery) Between(column, from, to string) *SelectQuery {
	if from != "" {
		q.Add(fmt.Sprintf("%s::date >= $%d::date", column, q.idx), from)
	}
	if to != "" {
		q.Add(fmt.Sprintf("%s::date <= $%d::date", column, q.idx), to)
	}
	return q
}

// Archived selects archived rows when archived is true, active rows otherwise.
func (q *SelectQuery) Archived(column string, archived bool) *SelectQuery {
	if archived {
		q.where += fmt.Sprintf(" AND %s IS NOT NULL", column)
	} else {
		q.where += fmt.Sprintf(" AND %s IS NULL", column)
	}
	return q
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SelectQuery) OrderBy(orderBy string) *SelectQuery {
	q.orderBy = orderBy
	return q
}

// CountSQL returns the count query SQL.
func (q *SelectQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.from, q.where)
}

// Args returns the filter arguments shared by CountSQL and AllSQL.
func (q *SelectQuery) Args() []interface{} {
	return q.args
}

// AllSQL returns the unpaginated data query.
func (q *SelectQuery) AllSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.from, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *SelectQuery) DataSQL() string {
	return q.AllSQL() + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
}

// DataArgs returns the arguments for the data query (filter args + limit + offset).
func (q *SelectQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
