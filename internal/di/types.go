/**
 * Package di provides dependency injection type definitions.
 *
 * The Container is the single source of truth for service instances. It is
 * created by Wire() and passed to the server, which hands services to the
 * module handlers.
 */
package di

import (
	"github.com/aristath/atelier/internal/clientdata"
	"github.com/aristath/atelier/internal/clients/goldprice"
	"github.com/aristath/atelier/internal/clients/koreaexim"
	"github.com/aristath/atelier/internal/database"
	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/aristath/atelier/internal/modules/orders"
	"github.com/aristath/atelier/internal/modules/rates"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/aristath/atelier/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: orders (ledger profile), rates (standard), client_data (cache)
 * - Clients: upstream rate endpoints (koreaexim, goldprice)
 * - Services: rates, catalog, orders
 * - Rate and order collaborators used by order-form sessions, either
 *   in-process services or remote HTTP clients depending on config
 */
type Container struct {
	OrdersDB     *database.DB // Orders, catalog, payments, alterations
	RatesDB      *database.DB // Daily rate snapshots
	ClientDataDB *database.DB // Cached upstream responses

	ClientDataRepo *clientdata.Repository
	ExchangeClient *koreaexim.Client
	GoldClient     *goldprice.Client

	EventBus     *events.Bus
	EventManager *events.Manager
	QueryCache   *querycache.Cache

	RatesService   *rates.Service
	CatalogService *catalog.Service
	OrdersService  *orders.Service

	// Order-form collaborators
	LocalCurrency  domain.Currency
	ExchangeSource domain.ExchangeRateSource
	GoldSource     domain.GoldPriceSource
	SaverFor       func(token string) domain.OrderSaver
}

// JobInstances holds the scheduled jobs for manual triggering
type JobInstances struct {
	RatesSync         scheduler.Job
	ClientDataCleanup scheduler.Job
}

// Close closes every open database
func (c *Container) Close() {
	for _, db := range []*database.DB{c.OrdersDB, c.RatesDB, c.ClientDataDB} {
		if db != nil {
			db.Close()
		}
	}
}
