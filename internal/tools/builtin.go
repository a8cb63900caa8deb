package tools

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// builtinCapabilities returns the toy tools: stateless request handlers that
// give clients something cheap to call while the rig misbehaves around them.
// echo and time declare two versions each so capability re-versioning can be
// exercised; the rest are single-version.
func builtinCapabilities() []Capability {
	return []Capability{
		{
			Name:           "echo",
			DefaultVersion: "v1",
			Versions: []Version{
				{
					Tag: "v1",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "echo",
							Description: "Echoes the given text back unchanged.",
							InputSchema: textSchema("text", "The text to echo back."),
						},
						Handler: handleEchoV1,
					},
				},
				{
					Tag: "v2",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "echo",
							Description: "Echoes the given text back in uppercase, prefixed with its length.",
							InputSchema: textSchema("text", "The text to echo back."),
						},
						Handler: handleEchoV2,
					},
				},
			},
		},
		{
			Name:           "sum",
			DefaultVersion: "v1",
			Versions: []Version{
				{
					Tag: "v1",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "sum",
							Description: "Adds two numbers and returns the result.",
							InputSchema: mcp.ToolInputSchema{
								Type: "object",
								Properties: map[string]interface{}{
									"a": map[string]interface{}{"type": "number", "description": "First addend."},
									"b": map[string]interface{}{"type": "number", "description": "Second addend."},
								},
								Required: []string{"a", "b"},
							},
						},
						Handler: handleSum,
					},
				},
			},
		},
		{
			Name:           "random",
			DefaultVersion: "v1",
			Versions: []Version{
				{
					Tag: "v1",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "random",
							Description: "Returns a random integer in [min, max] (defaults 0..100).",
							InputSchema: mcp.ToolInputSchema{
								Type: "object",
								Properties: map[string]interface{}{
									"min": map[string]interface{}{"type": "number", "description": "Lower bound, inclusive."},
									"max": map[string]interface{}{"type": "number", "description": "Upper bound, inclusive."},
								},
								Required: []string{},
							},
						},
						Handler: handleRandom,
					},
				},
			},
		},
		{
			Name:           "reverse",
			DefaultVersion: "v1",
			Versions: []Version{
				{
					Tag: "v1",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "reverse",
							Description: "Reverses the given text.",
							InputSchema: textSchema("text", "The text to reverse."),
						},
						Handler: handleReverse,
					},
				},
			},
		},
		{
			Name:           "time",
			DefaultVersion: "v1",
			Versions: []Version{
				{
					Tag: "v1",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "time",
							Description: "Returns the current time as unix seconds.",
							InputSchema: emptySchema(),
						},
						Handler: handleTimeV1,
					},
				},
				{
					Tag: "v2",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        "time",
							Description: "Returns the current time as an RFC 3339 timestamp in UTC.",
							InputSchema: emptySchema(),
						},
						Handler: handleTimeV2,
					},
				},
			},
		},
	}
}

func handleEchoV1(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required"), nil
	}
	return mcp.NewToolResultText(text), nil
}

func handleEchoV2(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("[%d] %s", len(text), strings.ToUpper(text))), nil
}

func handleSum(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	a, okA := numberArg(args, "a")
	b, okB := numberArg(args, "b")
	if !okA || !okB {
		return mcp.NewToolResultError("a and b number arguments are required"), nil
	}
	return mcp.NewToolResultText(formatNumber(a + b)), nil
}

func handleRandom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	min, ok := numberArg(args, "min")
	if !ok {
		min = 0
	}
	max, ok := numberArg(args, "max")
	if !ok {
		max = 100
	}
	if max < min {
		return mcp.NewToolResultError("max must be >= min"), nil
	}

	lo, hi := int64(min), int64(max)
	n := lo
	if hi > lo {
		n = lo + rand.Int63n(hi-lo+1)
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d", n)), nil
}

func handleReverse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required"), nil
	}
	runes := []rune(text)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return mcp.NewToolResultText(string(runes)), nil
}

func handleTimeV1(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(fmt.Sprintf("%d", time.Now().Unix())), nil
}

func handleTimeV2(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(time.Now().UTC().Format(time.RFC3339)), nil
}

// textSchema builds the one-required-string-argument schema shared by the
// text tools.
func textSchema(name, description string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			name: map[string]interface{}{"type": "string", "description": description},
		},
		Required: []string{name},
	}
}

func emptySchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: map[string]interface{}{},
		Required:   []string{},
	}
}

// numberArg reads a JSON number argument.
func numberArg(args map[string]interface{}, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// formatNumber prints a float without a trailing .000000 when it is integral.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
