package ruleexpr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpruntime/ruleexpr"
	"mcpruntime/value"
)

func eval(t *testing.T, src string, env ruleexpr.Env) value.Value {
	t.Helper()
	expr, err := ruleexpr.Parse(src)
	require.NoError(t, err)
	return ruleexpr.Eval(expr, env)
}

func asBool(v value.Value) bool {
	b, _ := v.AsBool()
	return b
}

func TestArithmeticPrecedence(t *testing.T) {
	v := eval(t, "2 + 3 * 4", nil)
	n, _ := v.Number()
	assert.Equal(t, 14.0, n)
}

func TestComparisonAndEquality(t *testing.T) {
	assert.True(t, asBool(eval(t, "3 >= 3", nil)))
	assert.True(t, asBool(eval(t, "\"a\" != \"b\"", nil)))
}

func TestCrossTypeEqualityIsNull(t *testing.T) {
	assert.Equal(t, value.KindNull, eval(t, "1 == \"x\"", nil).Kind())
	assert.Equal(t, value.KindNull, eval(t, "1 != \"x\"", nil).Kind())
}

func TestEvalOperatorCrossTypeEqualityIsNull(t *testing.T) {
	assert.Equal(t, value.KindNull, ruleexpr.EvalOperator("==", value.Int(1), value.String("x")).Kind())
	assert.Equal(t, value.KindNull, ruleexpr.EvalOperator("!=", value.Int(1), value.String("x")).Kind())
}

func TestStringLexicographicComparison(t *testing.T) {
	assert.True(t, asBool(eval(t, "\"abc\" < \"abd\"", nil)))
}

func TestLogicalShortCircuitAnd(t *testing.T) {
	env := ruleexpr.MapEnv{Funcs: map[string]func([]value.Value) value.Value{
		"boom": func(args []value.Value) value.Value { t.Fatal("should not be called"); return value.Null() },
	}}
	v := eval(t, "false && boom()", env)
	assert.False(t, asBool(v))
}

func TestLogicalShortCircuitOr(t *testing.T) {
	env := ruleexpr.MapEnv{Funcs: map[string]func([]value.Value) value.Value{
		"boom": func(args []value.Value) value.Value { t.Fatal("should not be called"); return value.Null() },
	}}
	v := eval(t, "true || boom()", env)
	assert.True(t, asBool(v))
}

func TestUnknownIdentifierResolvesToNull(t *testing.T) {
	v := eval(t, "missing_var == null", ruleexpr.MapEnv{})
	assert.True(t, asBool(v))
}

func TestUnknownFunctionResolvesToNull(t *testing.T) {
	v := eval(t, "nope(1,2) == null", ruleexpr.MapEnv{})
	assert.True(t, asBool(v))
}

func TestVariableResolution(t *testing.T) {
	env := ruleexpr.MapEnv{Vars: map[string]value.Value{"temp": value.Float(21.5)}}
	v := eval(t, "temp > 20", env)
	assert.True(t, asBool(v))
}

func TestFunctionCall(t *testing.T) {
	env := ruleexpr.MapEnv{Funcs: map[string]func([]value.Value) value.Value{
		"max": func(args []value.Value) value.Value {
			a, _ := args[0].Number()
			b, _ := args[1].Number()
			if a > b {
				return value.Float(float32(a))
			}
			return value.Float(float32(b))
		},
	}}
	v := eval(t, "max(3, 7) == 7", env)
	assert.True(t, asBool(v))
}

func TestDivisionByZeroIsNullNotPanic(t *testing.T) {
	assert.True(t, asBool(eval(t, "(1 / 0) == null", nil)))
}

func TestMalformedExpressionReturnsErrorNotPanic(t *testing.T) {
	_, err := ruleexpr.Parse("1 + ")
	assert.Error(t, err)
	_, err = ruleexpr.Parse("(1 + 2")
	assert.Error(t, err)
}

func TestUnaryOperators(t *testing.T) {
	assert.True(t, asBool(eval(t, "!false", nil)))
	v := eval(t, "-5 + 10", nil)
	n, _ := v.Number()
	assert.Equal(t, 5.0, n)
}
