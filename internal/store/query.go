package store

import (
	"fmt"
	"strings"
)

// queryBuilder collects WHERE conditions and their arguments. Values only
// ever travel as $n placeholders; condition text must come from code, never
// from user input.
type queryBuilder struct {
	conds []string
	args  []interface{}
}

// arg registers v and returns its placeholder.
func (q *queryBuilder) arg(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// where adds a condition; each %s in cond is replaced by a placeholder for
// the matching value.
func (q *queryBuilder) where(cond string, values ...interface{}) {
	placeholders := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = q.arg(v)
	}
	q.conds = append(q.conds, fmt.Sprintf(cond, placeholders...))
}

func (q *queryBuilder) whereClause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(q.conds, " AND ")
}

// snapshot returns a copy of the arguments collected so far.
func (q *queryBuilder) snapshot() []interface{} {
	out := make([]interface{}, len(q.args))
	copy(out, q.args)
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
