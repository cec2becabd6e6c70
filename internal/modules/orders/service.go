package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/atelier/internal/database"
	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/events"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/rs/zerolog"
)

// Save acknowledgments
const (
	MessageCreated = "Order saved successfully!"
	MessageUpdated = "Order updated successfully!"
)

// numberAttempts bounds retries when two saves race for the same order number.
const numberAttempts = 3

// Service implements domain.OrderSaver on the orders database
type Service struct {
	db     *sql.DB
	repo   *Repository
	events *events.Manager
	cache  *querycache.Cache
	now    func() time.Time
	log    zerolog.Logger
}

// NewService creates a new order service. eventManager may be nil.
func NewService(db *sql.DB, repo *Repository, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		events: eventManager,
		now:    time.Now,
		log:    log.With().Str("service", "orders").Logger(),
	}
}

// SetCache serves Get through the shared query cache and drops cached
// orders on every write.
func (s *Service) SetCache(cache *querycache.Cache) {
	s.cache = cache
}

func (s *Service) invalidate(id int64) {
	if s.cache != nil {
		s.cache.Invalidate(querycache.KeyOrders, querycache.OrderKey(id))
	}
}

// SaveOrder creates (req.OrderID nil) or updates an order in one
// transaction. Non-temporary saves get an order number when the order has
// none; temporary saves never do.
func (s *Service) SaveOrder(ctx context.Context, req domain.SaveRequest) (*domain.SaveResult, error) {
	payload := req.Payload
	if err := validatePayload(&payload); err != nil {
		return nil, err
	}

	var (
		result *domain.SaveResult
		err    error
	)
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		result, err = s.save(ctx, req, &payload)
		if err == nil || !isOrderNumberConflict(err) {
			break
		}
		s.log.Warn().Int("attempt", attempt).Msg("Order number taken concurrently, retrying")
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("order_id", result.OrderID).
		Bool("created", req.OrderID == nil).
		Bool("temporary", req.Temporary).
		Msg("Order saved")

	s.invalidate(result.OrderID)

	if s.events != nil {
		s.events.EmitTyped(events.OrderSaved, "orders", &events.OrderSavedData{
			OrderID:     result.OrderID,
			OrderNumber: result.OrderNumber,
			Created:     req.OrderID == nil,
			Temporary:   req.Temporary,
		})
	}

	return result, nil
}

func (s *Service) save(ctx context.Context, req domain.SaveRequest, p *domain.OrderPayload) (*domain.SaveResult, error) {
	now := s.now()
	result := &domain.SaveResult{}

	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		var current *string
		if req.OrderID != nil {
			var err error
			current, err = s.repo.OrderNumber(ctx, tx, *req.OrderID)
			if err != nil {
				return err
			}
		}

		number := current
		if !req.Temporary && number == nil {
			next, err := s.repo.NextOrderNumber(ctx, tx, now)
			if err != nil {
				return err
			}
			number = &next
		}

		var orderID int64
		if req.OrderID == nil {
			id, err := s.repo.Insert(ctx, tx, p, number, req.Temporary, now)
			if err != nil {
				return err
			}
			orderID = id
			result.Message = MessageCreated
		} else {
			orderID = *req.OrderID
			if err := s.repo.UpdateHeader(ctx, tx, orderID, p, number, req.Temporary, now); err != nil {
				return err
			}
			result.Message = MessageUpdated
		}

		if err := s.repo.ReplaceItems(ctx, tx, orderID, p.OrderItems); err != nil {
			return err
		}
		if err := s.repo.UpsertPayments(ctx, tx, orderID, p.Payments); err != nil {
			return err
		}
		if err := s.repo.UpsertAlterations(ctx, tx, orderID, p.AlterationDetails); err != nil {
			return err
		}

		result.OrderID = orderID
		if !req.Temporary {
			result.OrderNumber = number
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isOrderNumberConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "order_number")
}

func validatePayload(p *domain.OrderPayload) error {
	if p.Status == "" {
		p.Status = domain.StatusOrderCompleted
	} else {
		status, err := domain.ParseOrderStatus(string(p.Status))
		if err != nil {
			return domain.NewValidationError("status", err.Error())
		}
		p.Status = status
	}

	seen := make(map[domain.PaymentMethod]bool)
	for _, pay := range p.Payments {
		if pay.PaymentMethod != domain.PaymentAdvance && pay.PaymentMethod != domain.PaymentBalance {
			return domain.NewValidationError("paymentMethod", fmt.Sprintf("unknown payment method %q", pay.PaymentMethod))
		}
		if seen[pay.PaymentMethod] {
			return domain.NewValidationError("paymentMethod", fmt.Sprintf("duplicate %s payment", pay.PaymentMethod))
		}
		seen[pay.PaymentMethod] = true
	}

	for _, item := range p.OrderItems {
		if item.Quantity < 0 || item.Price < 0 {
			return domain.NewValidationError("orderItems", fmt.Sprintf("negative quantity or price for product %d", item.ProductID))
		}
	}
	return nil
}

// Get returns one order
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	if s.cache == nil {
		return s.repo.Get(ctx, id)
	}
	return querycache.Fetch(ctx, s.cache, querycache.OrderKey(id), func(ctx context.Context) (*Order, error) {
		return s.repo.Get(ctx, id)
	})
}

// List returns one page of orders
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	switch filter.Sort {
	case "":
		filter.Sort = SortDateAsc
	case SortDateAsc, SortDateDesc:
	default:
		return nil, domain.NewValidationError("sort", fmt.Sprintf("unknown sort %q", filter.Sort))
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		return nil, domain.NewValidationError("offset", "must not be negative")
	}

	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListResult{Orders: orders, Total: total}, nil
}

// UpdateStatus moves an order to status
func (s *Service) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) (*StatusUpdate, error) {
	now := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, status, now); err != nil {
		return nil, err
	}

	s.log.Info().Int64("order_id", id).Str("status", string(status)).Msg("Order status updated")
	s.invalidate(id)

	if s.events != nil {
		s.events.EmitTyped(events.OrderStatusChanged, "orders", &events.OrderStatusChangedData{
			OrderID: id,
			Status:  string(status),
		})
	}

	return &StatusUpdate{ID: id, Status: status, UpdatedAt: time.Unix(now.Unix(), 0).UTC()}, nil
}

// Delete removes an order and everything attached to it
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		return s.repo.Delete(ctx, tx, id)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error().Err(err).Int64("order_id", id).Msg("Failed to delete order")
		}
		return err
	}

	s.log.Info().Int64("order_id", id).Msg("Order deleted")
	s.invalidate(id)

	if s.events != nil {
		s.events.EmitTyped(events.OrderDeleted, "orders", &events.OrderDeletedData{OrderID: id})
	}
	return nil
}

// Export returns every order matching filter, ignoring its paging.
func (s *Service) Export(ctx context.Context, filter ListFilter) ([]Order, error) {
	filter.Limit = MaxLimit
	filter.Offset = 0

	var all []Order
	for {
		page, err := s.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Orders...)
		if len(page.Orders) < filter.Limit || len(all) >= page.Total {
			return all, nil
		}
		filter.Offset += filter.Limit
	}
}
