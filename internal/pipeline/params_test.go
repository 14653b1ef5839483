package pipeline_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainline/chainline/internal/pipeline"
)

func TestBindParams_Defaults(t *testing.T) {
	t.Parallel()

	specs := []pipeline.ParamSpec{
		{Name: "page_size", Kind: pipeline.KindNumber, Default: 20},
		{Name: "overwrite", Kind: pipeline.KindBoolean, Default: true},
		{Name: "label", Kind: pipeline.KindString, Default: "none"},
		{Name: "uris", Kind: pipeline.KindStringList},
	}

	params, err := pipeline.BindParams(specs, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, float64(20), params.Number("page_size"))
	assert.Equal(t, 20, params.Int("page_size"))
	assert.Equal(t, true, params.Bool("overwrite"))
	assert.Equal(t, "none", params.String("label"))
	assert.Empty(t, params.StringList("uris"))
}

func TestBindParams_RequiredMissing(t *testing.T) {
	t.Parallel()

	specs := []pipeline.ParamSpec{
		{Name: "query", Kind: pipeline.KindString, Required: true},
	}

	_, err := pipeline.BindParams(specs, map[string]any{})
	require.Error(t, err)

	var cfgErr *pipeline.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "query", cfgErr.Param)
}

func TestBindParams_Coercion(t *testing.T) {
	t.Parallel()

	specs := []pipeline.ParamSpec{
		{Name: "batch_size", Kind: pipeline.KindNumber, Required: true},
		{Name: "dry_run", Kind: pipeline.KindBoolean, Required: true},
		{Name: "uris", Kind: pipeline.KindStringList, Required: true},
		{Name: "token", Kind: pipeline.KindString, Required: true},
	}

	params, err := pipeline.BindParams(specs, map[string]any{
		// Values arrive as generic JSON types after queue transport.
		"batch_size": "42",
		"dry_run":    "true",
		"uris":       []any{"gs://b/a.csv", "gs://b/x.csv"},
		"token":      float64(7),
	})
	require.NoError(t, err)

	assert.Equal(t, 42, params.Int("batch_size"))
	assert.Equal(t, true, params.Bool("dry_run"))
	assert.Equal(t, []string{"gs://b/a.csv", "gs://b/x.csv"}, params.StringList("uris"))
	assert.Equal(t, "7", params.String("token"))
}

func TestBindParams_CoercionFailure(t *testing.T) {
	t.Parallel()

	specs := []pipeline.ParamSpec{
		{Name: "batch_size", Kind: pipeline.KindNumber, Required: true},
	}

	_, err := pipeline.BindParams(specs, map[string]any{"batch_size": "not-a-number"})

	var cfgErr *pipeline.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestParams_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	specs := []pipeline.ParamSpec{
		{Name: "token", Kind: pipeline.KindString, Default: "start"},
		{Name: "uris", Kind: pipeline.KindStringList, Default: []string{"a"}},
	}
	params, err := pipeline.BindParams(specs, map[string]any{})
	require.NoError(t, err)

	clone := params.Clone()
	clone["token"] = "next"
	clone["uris"].([]string)[0] = "b"

	assert.Equal(t, "start", params.String("token"))
	assert.Equal(t, []string{"a"}, params.StringList("uris"))
}
