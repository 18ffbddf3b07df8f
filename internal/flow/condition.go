package flow

import (
	"strconv"
	"strings"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

// EvaluateCondition evaluates `variable OP value` for a condition node.
// String comparisons are case-insensitive; greater_than/less_than
// compare numerically and are false when either side does not parse.
func EvaluateCondition(node *model.FlowNode, contact *model.Contact, vars map[string]string) bool {
	left, _ := resolveVar(node.CondVariable, contact, vars)
	right := node.CondValue

	switch node.CondOp {
	case model.OpIsEmpty:
		return strings.TrimSpace(left) == ""
	case model.OpIsNotEmpty:
		return strings.TrimSpace(left) != ""
	case model.OpGreaterThan, model.OpLessThan:
		l, errL := strconv.ParseFloat(strings.TrimSpace(left), 64)
		r, errR := strconv.ParseFloat(strings.TrimSpace(right), 64)
		if errL != nil || errR != nil {
			return false
		}
		if node.CondOp == model.OpGreaterThan {
			return l > r
		}
		return l < r
	}

	l := strings.ToLower(strings.TrimSpace(left))
	r := strings.ToLower(strings.TrimSpace(right))

	switch node.CondOp {
	case model.OpEquals:
		return l == r
	case model.OpNotEquals:
		return l != r
	case model.OpContains:
		return strings.Contains(l, r)
	case model.OpNotContains:
		return !strings.Contains(l, r)
	case model.OpStartsWith:
		return strings.HasPrefix(l, r)
	case model.OpEndsWith:
		return strings.HasSuffix(l, r)
	}
	return false
}
