package mcp

import (
	"context"
	"os"
	"time"

	"greenlight/internal/logging"
)

// WatchParent monitors for parent process death in a background
// goroutine and calls cancelFn when the parent PID changes (the editor or
// agent host disconnected), so stdio servers do not linger as zombies.
//
// It must NOT read from stdin: the MCP StdioTransport owns stdin
// exclusively and stolen bytes would corrupt the JSON-RPC stream.
//
// The goroutine exits when ctx is canceled or parent death is detected.
func WatchParent(ctx context.Context, cancelFn context.CancelFunc) {
	ppid := os.Getppid()
	logger := logging.New("mcp-watchdog")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
				if os.Getppid() != ppid {
					logger.Warn("parent process died, shutting down", "was_pid", ppid)
					cancelFn()
					return
				}
			}
		}
	}()
}
