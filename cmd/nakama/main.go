package main

import (
	"context"
	"database/sql"

	"bisca/internal/ports/nakama"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule proxies Nakama initialization to the nakama adapter package.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	return nakama.InitModule(ctx, logger, db, nk, initializer)
}

// main is never called; Nakama loads this package as a plugin and invokes
// InitModule directly. It exists so the package links in default buildmode.
func main() {}
