// Package di provides dependency injection for services.
package di

import (
	"fmt"

	"github.com/aristath/atelier/internal/clientdata"
	"github.com/aristath/atelier/internal/clients/goldprice"
	"github.com/aristath/atelier/internal/clients/koreaexim"
	"github.com/aristath/atelier/internal/clients/orderapi"
	"github.com/aristath/atelier/internal/clients/ratesapi"
	"github.com/aristath/atelier/internal/config"
	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/aristath/atelier/internal/modules/catalog"
	"github.com/aristath/atelier/internal/modules/orderform"
	orderformhandlers "github.com/aristath/atelier/internal/modules/orderform/handlers"
	"github.com/aristath/atelier/internal/modules/orders"
	"github.com/aristath/atelier/internal/modules/rates"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services on top of the databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	local := domain.ParseCurrency(cfg.LocalCurrency)
	if !domain.Contains(domain.CashCurrencies, local) {
		return fmt.Errorf("local currency %q is not a supported cash currency", cfg.LocalCurrency)
	}
	container.LocalCurrency = local

	// Event bus (synchronous, in-process)
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Process-wide query cache shared by catalog, orders and form sessions
	container.QueryCache = querycache.New(0, log)

	// Upstream clients cache their responses in client_data.db
	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.ExchangeClient = koreaexim.NewClient(koreaexim.Config{
		BaseURL: cfg.ExchangeAPIURL,
		APIKey:  cfg.ExchangeAPIKey,
		Timeout: cfg.HTTPTimeout,
	}, container.ClientDataRepo, log)
	container.GoldClient = goldprice.NewClient(goldprice.Config{
		BaseURL: cfg.GoldAPIURL,
		APIKey:  cfg.GoldAPIKey,
		Timeout: cfg.HTTPTimeout,
	}, container.ClientDataRepo, log)

	container.RatesService = rates.NewService(
		rates.NewRepository(container.RatesDB.Conn(), log),
		container.ExchangeClient,
		container.GoldClient,
		container.EventManager,
		rates.Config{
			LookbackDays: cfg.Rates.LookbackDays,
			RefreshHour:  cfg.Rates.RefreshHour,
			Location:     cfg.Rates.Location,
		},
		log,
	)

	container.CatalogService = catalog.NewService(
		catalog.NewRepository(container.OrdersDB.Conn(), log),
		container.QueryCache,
		log,
	)

	container.OrdersService = orders.NewService(
		container.OrdersDB.Conn(),
		orders.NewRepository(container.OrdersDB.Conn(), log),
		container.EventManager,
		log,
	)
	container.OrdersService.SetCache(container.QueryCache)

	// Rate sources for form sessions
	if cfg.RatesServiceURL != "" {
		remote := ratesapi.NewClient(cfg.RatesServiceURL, cfg.HTTPTimeout, log)
		container.ExchangeSource = remote
		container.GoldSource = remote
		log.Info().Str("url", cfg.RatesServiceURL).Msg("Order forms use remote rates service")
	} else {
		container.ExchangeSource = container.RatesService
		container.GoldSource = container.RatesService
	}

	// Order store for form sessions
	if cfg.OrderServiceURL != "" {
		remote := orderapi.NewClient(orderapi.Config{
			BaseURL: cfg.OrderServiceURL,
			Timeout: cfg.HTTPTimeout,
		}, log)
		container.SaverFor = func(token string) domain.OrderSaver {
			return remote.WithToken(token)
		}
		log.Info().Str("url", cfg.OrderServiceURL).Msg("Order forms use remote order store")
	} else {
		container.SaverFor = func(string) domain.OrderSaver {
			return container.OrdersService
		}
	}

	log.Info().Str("local_currency", string(local)).Msg("Services initialized")
	return nil
}

// OrderFormDeps returns the collaborators of the order-form handler. Every
// request gets a fresh rate provider so memoized quotes live as long as
// one form session.
func (c *Container) OrderFormDeps(log zerolog.Logger) orderformhandlers.Deps {
	return orderformhandlers.Deps{
		Forms: c.CatalogService,
		NewRates: func() orderform.RateResolver {
			return orderform.NewRateProvider(c.ExchangeSource, c.GoldSource, c.LocalCurrency, log)
		},
		SaverFor:      c.SaverFor,
		Cache:         c.QueryCache,
		Events:        c.EventManager,
		LocalCurrency: c.LocalCurrency,
	}
}
