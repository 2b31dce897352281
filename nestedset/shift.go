package nestedset

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var endpointColumns = []string{"lft", "rgt"}

// applyShifts runs the shifts against one scope as a single conditional update per endpoint
// column. The number of endpoints touched must match what the arithmetic predicts for a scope
// whose largest rgt is max; any difference aborts the transaction.
func (t *Tree[T, PT]) applyShifts(tx *gorm.DB, op string, scope uint64, max int64, shifts []Shift) error {
	if len(shifts) == 0 {
		return nil
	}
	var got int64
	for _, col := range endpointColumns {
		expr, exprArgs := caseExpr(col, shifts)
		where, whereArgs := rangeFilter(col, shifts)
		res := tx.Model(new(T)).
			Where("scope_id = ?", scope).
			Where(where, whereArgs...).
			UpdateColumn(col, gorm.Expr(expr, exprArgs...))
		if res.Error != nil {
			return fmt.Errorf("shifting %s: %w", col, res.Error)
		}
		got += res.RowsAffected
	}
	if expected := PredictEndpoints(shifts, max); got != expected {
		shiftMismatches.WithLabelValues(t.table, op).Inc()
		t.logger.Error("shift touched unexpected number of endpoints", "op", op, "scope", scope, "expected", expected, "got", got)
		return &ShiftMismatchError{Table: t.table, Scope: scope, Op: op, Expected: expected, Got: got}
	}
	return nil
}

// caseExpr builds "CASE WHEN col BETWEEN ? AND ? THEN col + ? ... ELSE col END".
func caseExpr(col string, shifts []Shift) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, 3*len(shifts))
	sb.WriteString("CASE")
	for _, s := range shifts {
		if s.To == Unbounded {
			fmt.Fprintf(&sb, " WHEN %s >= ? THEN %s + ?", col, col)
			args = append(args, s.From, s.Delta)
		} else {
			fmt.Fprintf(&sb, " WHEN %s BETWEEN ? AND ? THEN %s + ?", col, col)
			args = append(args, s.From, s.To, s.Delta)
		}
	}
	fmt.Fprintf(&sb, " ELSE %s END", col)
	return sb.String(), args
}

func rangeFilter(col string, shifts []Shift) (string, []any) {
	parts := make([]string, 0, len(shifts))
	args := make([]any, 0, 2*len(shifts))
	for _, s := range shifts {
		if s.To == Unbounded {
			parts = append(parts, col+" >= ?")
			args = append(args, s.From)
		} else {
			parts = append(parts, col+" BETWEEN ? AND ?")
			args = append(args, s.From, s.To)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
