package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *FuncTool {
	return NewFuncTool(name, "echoes its args", nil, func(ctx context.Context, args map[string]any) (ToolResult, error) {
		return NewSuccessResult(name), nil
	})
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("b")))
		require.NoError(t, r.Register(echoTool("a")))

		got, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, "a", got.Name())
		assert.Equal(t, 2, r.Len())
	})

	t.Run("duplicate", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("dup")))
		err := r.Register(echoTool("dup"))
		assert.True(t, errors.Is(err, ErrToolAlreadyExists))
	})

	t.Run("invalid", func(t *testing.T) {
		r := NewRegistry()
		assert.True(t, errors.Is(r.Register(nil), ErrInvalidArgs))
		assert.True(t, errors.Is(r.Register(echoTool("")), ErrInvalidArgs))
	})

	t.Run("execute", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(echoTool("x")))

		res, err := r.Execute(context.Background(), "x", nil)
		require.NoError(t, err)
		assert.Equal(t, "x", res.Content)

		_, err = r.Execute(context.Background(), "y", nil)
		var nf *ToolNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "y", nf.Name)
		assert.True(t, errors.Is(err, ErrToolNotFound))
	})
}

func TestFuncToolDefaults(t *testing.T) {
	tool := &FuncTool{ToolName: "n"}
	assert.Equal(t, "object", tool.Parameters()["type"])

	res, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "[error] tool has no implementation", res.String())
}

func TestErrorTypes(t *testing.T) {
	err := NewToolTimeoutError("slow", "1s")
	assert.True(t, errors.Is(err, ErrToolTimeout))
	assert.Contains(t, err.Error(), "slow")

	cause := errors.New("boom")
	err = NewInvalidArgsError("t", "bad", cause)
	assert.True(t, errors.Is(err, ErrInvalidArgs))
	assert.True(t, errors.Is(err, cause))
}
