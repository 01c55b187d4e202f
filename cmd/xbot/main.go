// Command xbot gathers market news and forum posts, asks a language model for
// a short sentiment post, renders a card and publishes the post to X.
//
// Usage:
//
//	xbot run      # one pipeline run, exit code reflects fatal failures
//	xbot serve    # cron scheduler with health and metrics endpoints
//	xbot state    # inspect the processed id set
//	xbot sources  # list or probe the configured sources
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
