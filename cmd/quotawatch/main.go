// quotawatch - Expense claim auditing for legislative allowances.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"os"

	"github.com/opensource-finance/quotawatch/internal/commands"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := commands.Execute(commands.BuildInfo{
		Version: Version,
		Commit:  Commit,
		Date:    BuildDate,
	}); err != nil {
		os.Exit(1)
	}
}
