package helpers

import (
	"log/slog"
	"os"
)

// SetupLogger creates a logger for one component of the evaluator pipeline.
// If the provided handler is nil, a text handler writing to stderr is used, grouped under component.
// Stdout is left alone because the subprocess runtime reserves it for the plugin handshake.
//
// Parameters:
//   - handler: The slog.Handler to use, or nil for defaults
//   - component: The name of the component (e.g., "starlark", "proxy", "evaluator")
//   - groupName: Optional additional group name within the component
//
// Returns:
//   - The configured handler
//   - A logger created from the handler
func SetupLogger(handler slog.Handler, component string, groupName string) (slog.Handler, *slog.Logger) {
	if handler == nil {
		defaultHandler := slog.NewTextHandler(os.Stderr, nil)
		handler = defaultHandler.WithGroup(component)
		slog.New(handler).Debug("Handler is nil, using the default logger configuration.")
	}

	var logger *slog.Logger
	if groupName != "" {
		logger = slog.New(handler.WithGroup(groupName))
	} else {
		logger = slog.New(handler)
	}

	return handler, logger
}
