// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/atelier/internal/config"
	"github.com/aristath/atelier/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	dbs := []struct {
		target  **database.DB
		name    string
		profile database.DatabaseProfile
	}{
		// orders.db - Orders and the catalog they reference
		{&container.OrdersDB, "orders", database.ProfileLedger},
		// rates.db - One row per rate snapshot
		{&container.RatesDB, "rates", database.ProfileStandard},
		// client_data.db - Upstream response cache
		{&container.ClientDataDB, "client_data", database.ProfileCache},
	}

	for _, d := range dbs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, d.name+".db"),
			Profile: d.profile,
			Name:    d.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", d.name, err)
		}
		*d.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
