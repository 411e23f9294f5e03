// Command dontvisit edits the dontvisitd block list and settings directly in
// its database. Stop the daemon first; the database allows one writer.
package main

import (
	"fmt"
	"os"

	"github.com/haukened/dontvisit/internal/blocker/config"
)

func main() {
	dbPath := config.DEFAULT_APP_CONFIG.DBPath
	if cfg, err := config.Load(); err == nil {
		dbPath = cfg.DBPath
	}

	if err := newRootCommand(dbPath).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
