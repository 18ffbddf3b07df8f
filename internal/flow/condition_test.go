package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

func TestEvaluateCondition(t *testing.T) {
	vars := map[string]string{
		"answer": "Yes",
		"age":    "30",
		"city":   "São Paulo",
		"blank":  "  ",
	}

	tests := []struct {
		name     string
		variable string
		op       model.ConditionOp
		value    string
		want     bool
	}{
		{"equals is case-insensitive", "answer", model.OpEquals, "yes", true},
		{"not equals", "answer", model.OpNotEquals, "no", true},
		{"contains", "city", model.OpContains, "paulo", true},
		{"not contains", "city", model.OpNotContains, "rio", true},
		{"starts with", "city", model.OpStartsWith, "são", true},
		{"ends with", "city", model.OpEndsWith, "paulo", true},
		{"greater than numeric", "age", model.OpGreaterThan, "18", true},
		{"less than numeric", "age", model.OpLessThan, "18", false},
		{"greater than non-numeric is false", "answer", model.OpGreaterThan, "18", false},
		{"is empty on whitespace", "blank", model.OpIsEmpty, "", true},
		{"is empty on missing var", "missing", model.OpIsEmpty, "", true},
		{"is not empty", "answer", model.OpIsNotEmpty, "", true},
		{"unknown op is false", "answer", model.ConditionOp("matches"), "yes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &model.FlowNode{
				Type:         model.NodeCondition,
				CondVariable: tt.variable,
				CondOp:       tt.op,
				CondValue:    tt.value,
			}
			assert.Equal(t, tt.want, EvaluateCondition(node, &model.Contact{}, vars))
		})
	}
}

func TestInterpolate(t *testing.T) {
	contact := &model.Contact{Name: "Ana", ExternalID: "5511999999999"}
	vars := map[string]string{"plan": "Pro"}

	assert.Equal(t, "Hi Ana, your plan is Pro.",
		Interpolate("Hi {{name}}, your plan is {{ plan }}.", contact, vars))

	// Contact phone falls back to the external id.
	assert.Equal(t, "5511999999999", Interpolate("{{phone}}", contact, vars))

	// Unresolved placeholders stay literal.
	assert.Equal(t, "Hello {{nickname}}", Interpolate("Hello {{nickname}}", contact, vars))
}

func TestInterpolateVarsShadowedByContactBuiltins(t *testing.T) {
	contact := &model.Contact{Name: "Ana"}
	vars := map[string]string{"name": "Override"}

	assert.Equal(t, "Ana", Interpolate("{{name}}", contact, vars))
}
