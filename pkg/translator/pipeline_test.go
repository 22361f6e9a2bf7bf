package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dewei/screenradar/pkg/catalog"
	"github.com/dewei/screenradar/pkg/compiler"
	"github.com/dewei/screenradar/pkg/validator"
)

// The full translate -> validate -> compile chain, exercised the way
// pkg/api's /screen handler drives it.

func TestPipeline_EmptyQuery_CompilesToFullUniverse(t *testing.T) {
	tr := newTranslator()
	val := validator.New(catalog.Get(), validator.DefaultConfig())
	comp := compiler.New(catalog.Get(), compiler.DefaultConfig())

	q, err := tr.Translate(context.Background(), "")
	require.NoError(t, err)

	res := val.Validate(q)
	require.True(t, res.OK())

	compiled, err := comp.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, "WHERE 1=1")
}

func TestPipeline_SimpleValueFilter(t *testing.T) {
	tr := newTranslator()
	val := validator.New(catalog.Get(), validator.DefaultConfig())
	comp := compiler.New(catalog.Get(), compiler.DefaultConfig())

	q, err := tr.Translate(context.Background(), "PE less than 15")
	require.NoError(t, err)

	res := val.Validate(q)
	require.True(t, res.OK(), "errors: %v", res.Errors())

	compiled, err := comp.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, "< $1")
	assert.Equal(t, []interface{}{15.0, 100}, compiled.Params)
}

func TestPipeline_PeriodQuery(t *testing.T) {
	tr := newTranslator()
	val := validator.New(catalog.Get(), validator.DefaultConfig())
	comp := compiler.New(catalog.Get(), compiler.DefaultConfig())

	q, err := tr.Translate(context.Background(), "positive earnings last 4 quarters")
	require.NoError(t, err)

	res := val.Validate(q)
	require.True(t, res.OK(), "errors: %v", res.Errors())

	compiled, err := comp.Compile(q)
	require.NoError(t, err)
	assert.Contains(t, compiled.SQL, "NOT EXISTS")
	assert.Contains(t, compiled.Params, 4)
	assert.Contains(t, compiled.Params, 0.0)
}
