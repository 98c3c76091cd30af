package models

import (
	"time"
)

type ProductType string

const (
	TypeBeer      ProductType = "BEER"
	TypeCider     ProductType = "CIDER"
	TypeLongDrink ProductType = "LONG_DRINK"
	TypeSnack     ProductType = "SNACK"
	TypeOther     ProductType = "OTHER"
)

func ProductTypes() []ProductType {
	return []ProductType{TypeBeer, TypeCider, TypeLongDrink, TypeSnack, TypeOther}
}

func ParseProductType(s string) (ProductType, bool) {
	for _, t := range ProductTypes() {
		if ProductType(s) == t {
			return t, true
		}
	}
	return "", false
}

type OrderStatus string

const (
	StatusNotPaid   OrderStatus = "NOT_PAID"
	StatusQueued    OrderStatus = "QUEUED"
	StatusCashPaid  OrderStatus = "CASH_PAID"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusClosed    OrderStatus = "CLOSED"
)

// ParseOrderStatus validates a status name coming over the wire.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case StatusNotPaid, StatusQueued, StatusCashPaid, StatusCompleted, StatusClosed:
		return OrderStatus(s), true
	}
	return "", false
}

type Product struct {
	ID           uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	Brand        string      `gorm:"not null"                 json:"brand"`
	Description  string      `json:"description"`
	ImgURL       string      `json:"imgUrl"`
	Price        float64     `gorm:"not null"                 json:"price"`
	MinimalPrice float64     `gorm:"not null"                 json:"minimalPrice"`
	Quantity     int         `gorm:"not null"                 json:"quantity"`
	ProductType  ProductType `gorm:"not null"                 json:"productType"`
}

type User struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string  `gorm:"unique;not null"          json:"username"`
	PasswordHash string  `gorm:"not null"                 json:"-"`
	Role         string  `gorm:"not null"                 json:"role"`
	Balance      float64 `gorm:"not null;default:0"       json:"balance"`
}

type OrderItem struct {
	ID        uint    `gorm:"primaryKey"                  json:"id"`
	OrderID   uint    `gorm:"index"                       json:"order_id"`
	ProductID uint    `gorm:"not null"                    json:"productId"`
	Quantity  int     `gorm:"default:1"                   json:"quantity"`
	UnitPrice float64 `gorm:"not null"                    json:"unitPrice"`
}

type Order struct {
	ID           uint        `gorm:"primaryKey"     json:"id"`
	UserID       uint        `gorm:"index;not null" json:"user_id"`
	Status       OrderStatus `gorm:"not null"       json:"status"`
	TotalPrice   float64     `gorm:"not null"       json:"totalPrice"`
	StartedTime  *time.Time  `json:"startedTime"`
	CompleteTime *time.Time  `json:"completeTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"orderItems"`
}

// Report holds the latest aggregate written by the scheduler.
type Report struct {
	ID                  uint      `gorm:"primaryKey"       json:"id"`
	MostPopularProducts []string  `gorm:"serializer:json"  json:"mostPopularProducts"`
	UpdatedAt           time.Time `json:"lastUpdated"`
}
