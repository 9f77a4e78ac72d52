package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/lucy/internal/lucyerr"
	"github.com/haasonsaas/lucy/internal/tools"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

func TestRegistryDispatchesByName(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("echo", tools.ExecutorFunc(func(_ context.Context, call lucy.ToolCall) (lucy.ToolResult, error) {
		return lucy.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "ok"}, nil
	}))

	result, err := reg.Execute(context.Background(), lucy.ToolCall{ID: "1", Name: "echo"})
	require.NoError(t, err)
	require.Equal(t, "ok", result.Content)
	require.False(t, result.IsError)
}

func TestRegistryUnknownToolIsError(t *testing.T) {
	reg := tools.NewRegistry()
	result, err := reg.Execute(context.Background(), lucy.ToolCall{ID: "1", Name: "missing"})
	require.Error(t, err)
	require.Equal(t, lucyerr.KindUnknownTool, lucyerr.KindOf(err))
	require.True(t, result.IsError)
}

func TestRegistryNames(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("a", tools.ExecutorFunc(func(_ context.Context, call lucy.ToolCall) (lucy.ToolResult, error) {
		return lucy.ToolResult{}, nil
	}))
	reg.Register("b", tools.ExecutorFunc(func(_ context.Context, call lucy.ToolCall) (lucy.ToolResult, error) {
		return lucy.ToolResult{}, nil
	}))
	require.ElementsMatch(t, []string{"a", "b"}, reg.Names())
}
