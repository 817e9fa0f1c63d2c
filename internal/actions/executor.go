// Package actions turns resolved purchases into dispatched commands. The
// Executor substitutes the identity placeholder into each configured template
// and hands the result to a CommandDispatcher sink; the SQS dispatcher
// enqueues commands for the game-server-side agent, and the log dispatcher
// serves local development.
package actions

import (
	"context"
	"log/slog"
	"strings"

	"shopbridge/internal/types"
)

// Executor performs template substitution and dispatches the resulting
// command strings. It has no rollback semantics: each dispatch attempt is
// independent, and a failure is logged without aborting the remaining
// actions or repetitions. Partial execution across a multi-command package
// is accepted.
type Executor struct {
	dispatcher types.CommandDispatcher
	logger     *slog.Logger
}

// NewExecutor creates an Executor over the given dispatcher.
func NewExecutor(dispatcher types.CommandDispatcher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{dispatcher: dispatcher, logger: logger}
}

// Execute dispatches every template once per repetition, in template order,
// with all templates of one repetition completing before the next repetition
// begins. The quantity is floored at 1 so a malformed or missing quantity
// still grants the purchase once. It returns the number of commands
// successfully dispatched.
func (e *Executor) Execute(ctx context.Context, templates []string, identity string, quantity int) int {
	if quantity < 1 {
		quantity = 1
	}

	dispatched := 0
	for rep := 0; rep < quantity; rep++ {
		for _, tmpl := range templates {
			command := strings.ReplaceAll(tmpl, types.PlayerPlaceholder, identity)
			if err := e.dispatcher.Dispatch(ctx, command, identity); err != nil {
				e.logger.ErrorContext(ctx, "command dispatch failed",
					"command", command,
					"identity", identity,
					"error", err,
				)
				continue
			}
			dispatched++
		}
	}
	return dispatched
}

// LogDispatcher writes commands to the structured log instead of executing
// them. It is the default sink for local development and dry runs.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the command and reports success.
func (d *LogDispatcher) Dispatch(ctx context.Context, command string, identity string) error {
	d.logger.InfoContext(ctx, "command dispatched (log sink)",
		"command", command,
		"identity", identity,
	)
	return nil
}
