// Package ops holds the kbctl commands that run the gate and maintain stores directly.
package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/config"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/logging"
)

// runtimeFactory builds the runtime for a command. Tests swap it for an
// in-memory runtime.
var runtimeFactory = func(ctx context.Context, opts cli.RuntimeOptions) (*cli.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return nil, err
	}
	return cli.NewRuntime(ctx, cfg, logger, opts)
}

func printLines(w io.Writer, header string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(w, header)
	for _, l := range lines {
		fmt.Fprintf(w, "  - %s\n", l)
	}
}
