// Package store persists flagged expense sets and audit run history, and
// reads the downloader's raw expense files.
package store

import (
	"fmt"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// New creates the flagged store selected by cfg.Driver. root is the
// processed data directory used by the csv driver.
func New(cfg domain.StoreConfig, root string) (domain.FlaggedStore, error) {
	switch cfg.Driver {
	case "", "csv":
		return NewFileStore(root)
	case "sqlite", "postgres":
		return NewSQLStore(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported store driver %q", domain.ErrInvalidConfiguration, cfg.Driver)
	}
}
