package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"beerlab/internal/models"
)

// Payment methods accepted by ConfirmOrder.
const (
	PayBalance = 1
	PayCash    = 2
)

// OrderService owns the single-open-order-per-user invariant. All cart
// mutations take the owner's lock before touching the database, so two
// concurrent adds can neither create two NOT_PAID orders nor lose an
// item-quantity update.
type OrderService struct {
	DB *gorm.DB

	locks sync.Map // userID -> *sync.Mutex
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{DB: db}
}

func (s *OrderService) lockUser(userID uint) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func orderTotal(items []models.OrderItem) float64 {
	var total float64
	for _, it := range items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

func (s *OrderService) openOrderTx(tx *gorm.DB, userID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items").
		Where("user_id = ? AND status = ?", userID, models.StatusNotPaid).
		First(&order).Error
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	order = models.Order{
		UserID:     userID,
		Status:     models.StatusNotPaid,
		TotalPrice: 0,
		Items:      []models.OrderItem{},
	}
	if err := tx.Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// OpenOrder returns the user's NOT_PAID order, creating an empty one if none
// exists yet.
func (s *OrderService) OpenOrder(ctx context.Context, userID uint) (*models.Order, error) {
	defer s.lockUser(userID)()

	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.openOrderTx(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// AddProduct reserves quantity units of a product into the user's open order.
// Only a product whose current stock is exactly zero is rejected; a larger
// add is applied as-is.
func (s *OrderService) AddProduct(ctx context.Context, userID, productID uint, quantity int) (*models.Order, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}

	defer s.lockUser(userID)()

	var order *models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: product %d", ErrNotFound, productID)
			}
			return err
		}
		if product.Quantity == 0 {
			return fmt.Errorf("%w: product %d", ErrOutOfStock, productID)
		}

		var err error
		order, err = s.openOrderTx(tx, userID)
		if err != nil {
			return err
		}

		merged := false
		for i := range order.Items {
			if order.Items[i].ProductID == productID {
				order.Items[i].Quantity += quantity
				if err := tx.Save(&order.Items[i]).Error; err != nil {
					return err
				}
				merged = true
				break
			}
		}
		if !merged {
			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: productID,
				Quantity:  quantity,
				UnitPrice: product.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}

		product.Quantity -= quantity
		if err := tx.Save(&product).Error; err != nil {
			return err
		}

		order.TotalPrice = orderTotal(order.Items)
		return tx.Save(order).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// orderOwner resolves the order's user so mutations addressed by order ID
// can take the same per-user lock as the rest of the cart operations.
func (s *OrderService) orderOwner(ctx context.Context, orderID uint) (uint, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Select("id", "user_id").First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return 0, err
	}
	return order.UserID, nil
}

// ReduceItem decrements the matching item's quantity by exactly one and
// returns one unit to the product's stock.
func (s *OrderService) ReduceItem(ctx context.Context, orderID, productID uint) (*models.Order, error) {
	userID, err := s.orderOwner(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer s.lockUser(userID)()

	var order models.Order
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		var item *models.OrderItem
		for i := range order.Items {
			if order.Items[i].ProductID == productID {
				item = &order.Items[i]
				break
			}
		}
		if item == nil {
			return fmt.Errorf("%w: product %d in order %d", ErrItemNotFound, productID, orderID)
		}

		item.Quantity -= 1
		if err := tx.Save(item).Error; err != nil {
			return err
		}

		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}
		product.Quantity += 1
		if err := tx.Save(&product).Error; err != nil {
			return err
		}

		order.TotalPrice = orderTotal(order.Items)
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// RemoveProduct drops the item entirely and returns its reserved units to
// stock. The item's order reference is cleared before the row is deleted so
// no dangling back-reference survives.
func (s *OrderService) RemoveProduct(ctx context.Context, orderID, productID uint) (*models.Order, error) {
	userID, err := s.orderOwner(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer s.lockUser(userID)()

	var order models.Order
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}

		var removed *models.OrderItem
		kept := make([]models.OrderItem, 0, len(order.Items))
		for i := range order.Items {
			if order.Items[i].ProductID == productID {
				removed = &order.Items[i]
				continue
			}
			kept = append(kept, order.Items[i])
		}
		if removed == nil {
			return fmt.Errorf("%w: product %d in order %d", ErrItemNotFound, productID, orderID)
		}

		var product models.Product
		if err := tx.First(&product, productID).Error; err != nil {
			return err
		}
		product.Quantity += removed.Quantity
		if err := tx.Save(&product).Error; err != nil {
			return err
		}

		removed.OrderID = 0
		if err := tx.Delete(&models.OrderItem{}, removed.ID).Error; err != nil {
			return err
		}

		order.Items = kept
		order.TotalPrice = orderTotal(order.Items)
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ConfirmOrder moves the user's open order into the fulfillment queue.
// Balance payment debits the user atomically with the status change; an
// insufficient balance aborts with no partial state.
func (s *OrderService) ConfirmOrder(ctx context.Context, userID uint, method int) (*models.Order, error) {
	defer s.lockUser(userID)()

	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Items").
			Where("user_id = ? AND status = ?", userID, models.StatusNotPaid).
			First(&order).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: open order for user %d", ErrNotFound, userID)
			}
			return err
		}

		switch method {
		case PayBalance:
			var user models.User
			if err := tx.First(&user, userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: user %d", ErrNotFound, userID)
				}
				return err
			}
			if user.Balance < order.TotalPrice {
				return fmt.Errorf("%w: balance %.2f, total %.2f", ErrNotEnoughBalance, user.Balance, order.TotalPrice)
			}
			user.Balance -= order.TotalPrice
			if err := tx.Save(&user).Error; err != nil {
				return err
			}
			order.Status = models.StatusQueued
		case PayCash:
			order.Status = models.StatusCashPaid
		default:
			return fmt.Errorf("%w: unknown payment method %d", ErrValidation, method)
		}

		now := time.Now()
		order.StartedTime = &now
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ChangeStatus validates the target status name and applies it. Transitioning
// to COMPLETED stamps the completion time.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID uint, status string) (*models.Order, error) {
	target, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var order models.Order
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
			}
			return err
		}
		if target == models.StatusCompleted {
			now := time.Now()
			order.CompleteTime = &now
		}
		order.Status = target
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) Order(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) AllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) UserOrders(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").Where("user_id = ?", userID).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *OrderService) CompletedUserOrders(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		Where("user_id = ? AND status = ?", userID, models.StatusCompleted).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Queue returns confirmed orders awaiting fulfillment, oldest first.
// NOT_PAID and CLOSED orders never appear in it.
func (s *OrderService) Queue(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		Where("status NOT IN ?", []models.OrderStatus{models.StatusNotPaid, models.StatusClosed}).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		ti, tj := orders[i].StartedTime, orders[j].StartedTime
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.Before(*tj)
	})
	return orders, nil
}

// QueuePosition counts the queue entries ahead of the given order. An order
// absent from the queue reports the queue length.
func (s *OrderService) QueuePosition(ctx context.Context, orderID uint) (int, error) {
	if _, err := s.Order(ctx, orderID); err != nil {
		return 0, err
	}
	queue, err := s.Queue(ctx)
	if err != nil {
		return 0, err
	}
	for i := range queue {
		if queue[i].ID == orderID {
			return i, nil
		}
	}
	return len(queue), nil
}
