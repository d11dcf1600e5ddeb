package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_JsonFieldReference(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetInput(map[string]interface{}{"name": "ada"})

	result, err := p.Evaluate("{{$json.name}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "ada", result)
}

func TestEvaluate_NodeOutputReference(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetNodeOutput("fetch", map[string]interface{}{"status": "ok"})

	result, err := p.Evaluate("{{$node.fetch.data.status}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestEvaluate_FunctionCall(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	result, err := p.Evaluate(`{{$func.uppercase("ok")}}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", result)
}

func TestEvaluate_MixedLiteralAndTemplate_ReturnsString(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetInput(map[string]interface{}{"id": "123"})

	result, err := p.Evaluate("order-{{$json.id}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-123", result)
}

func TestEvaluate_Secret_ResolvesThroughCredentialResolver(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.Secrets = stubResolver{"api-token": "sekret"}

	result, err := p.Evaluate("{{$secret.api-token}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "sekret", result)
}

func TestEvaluate_Secret_NoResolverConfigured_Errors(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	_, err := p.Evaluate("{{$secret.api-token}}", ctx)
	assert.Error(t, err)
}

func TestEvaluate_Secret_NotFound_Errors(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.Secrets = stubResolver{}

	_, err := p.Evaluate("{{$secret.missing}}", ctx)
	assert.Error(t, err)
}

func TestEvaluateTemplate_NestedMapAndArray(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetInput(map[string]interface{}{"city": "denver"})

	settings := map[string]interface{}{
		"headers": map[string]interface{}{
			"X-City": "{{$json.city}}",
		},
		"tags": []interface{}{"{{$json.city}}", "static"},
	}

	result, err := p.EvaluateTemplate(settings, ctx)
	require.NoError(t, err)

	headers := result["headers"].(map[string]interface{})
	assert.Equal(t, "denver", headers["X-City"])
	tags := result["tags"].([]interface{})
	assert.Equal(t, "denver", tags[0])
	assert.Equal(t, "static", tags[1])
}

func TestEvaluateTemplate_NilMap_ReturnsEmptyMap(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	result, err := p.EvaluateTemplate(nil, ctx)
	require.NoError(t, err)
	assert.Empty(t, result)
}

type stubResolver map[string]string

func (s stubResolver) FindByName(name string) (string, bool) {
	_, ok := s[name]
	return name, ok
}

func (s stubResolver) DecryptedById(id string) (string, error) {
	return s[id], nil
}
