package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("tulog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("tulog time-under-load tracker. List exercises, read session history (weight and seconds under load per set) and check the running timer. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
		server.ServerTool{Tool: toolGetExerciseHistory, Handler: h.getExerciseHistory},
		server.ServerTool{Tool: toolGetTimerStatus, Handler: h.getTimerStatus},
	)

	s.AddResources(
		server.ServerResource{Resource: resExercises, Handler: h.exercises},
		server.ServerResource{Resource: resTimer, Handler: h.timer},
	)

	return s
}

// Serve runs an MCP server over stdio.
func Serve(ds DataSource, version string, log *slog.Logger) error {
	return server.ServeStdio(New(ds, version, log))
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

var resExercises = mcp.NewResource(
	"tulog://exercises",
	"Exercises",
	mcp.WithResourceDescription("Every exercise with its session history, pending sync state and current weight input"),
	mcp.WithMIMEType("application/json"),
)

var resTimer = mcp.NewResource(
	"tulog://timer",
	"Timer",
	mcp.WithResourceDescription("The running timer: armed exercise, elapsed seconds and seconds left to beat the previous set"),
	mcp.WithMIMEType("application/json"),
)
