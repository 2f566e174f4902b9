package storage

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	logx "topicbot/pkg/logx"
)

const DefaultPath = "./calendar_db.json"

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = DefaultPath
		}
		return NewFile(afero.NewOsFs(), path, log), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
