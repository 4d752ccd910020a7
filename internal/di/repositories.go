// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/modules/marketdata"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil {
		return fmt.Errorf("history database not initialized")
	}

	container.MarketDataRepo = marketdata.NewRepository(container.HistoryDB.Conn(), log)

	log.Info().Msg("All repositories initialized")
	return nil
}
