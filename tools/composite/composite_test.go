package composite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mcpruntime/tools/composite"
	"mcpruntime/value"
)

func TestSubstituteReplacesBoundIdentifiers(t *testing.T) {
	ctx := composite.NewContext()
	ctx.Set("r1", value.String("hello"))

	got := composite.Substitute(`{"message":"after {{r1}}"}`, ctx)
	assert.Equal(t, `{"message":"after hello"}`, got)
}

func TestSubstituteUnboundIdentifierIsEmptyString(t *testing.T) {
	ctx := composite.NewContext()
	got := composite.Substitute(`{"x":"{{missing}}"}`, ctx)
	assert.Equal(t, `{"x":""}`, got)
}

func TestSubstituteIgnoresSingleBrace(t *testing.T) {
	ctx := composite.NewContext()
	ctx.Set("x", value.Int(1))
	got := composite.Substitute(`{x}`, ctx)
	assert.Equal(t, `{x}`, got)
}

func TestSubstituteMultipleTokens(t *testing.T) {
	ctx := composite.NewContext()
	ctx.Set("a", value.Int(1))
	ctx.Set("b", value.Int(2))
	got := composite.Substitute(`{{a}}-{{b}}`, ctx)
	assert.Equal(t, `1-2`, got)
}
