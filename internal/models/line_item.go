package models

import "time"

// LineItem is a snapshot of a product consumed by a service order
type LineItem struct {
	ID               string    `db:"id" json:"id"`
	OrderID          string    `db:"order_id" json:"-"`
	ProductID        string    `db:"product_id" json:"product_id"`
	ProductName      string    `db:"product_name" json:"product_name"`
	ProductReference string    `db:"product_reference" json:"product_reference"`
	Qty              int       `db:"qty" json:"qty"`
	UnitCost         float64   `db:"unit_cost" json:"unit_cost"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// NewLineItem snapshots the product's name, reference and current cost
func NewLineItem(orderID string, product Product, qty int) LineItem {
	return LineItem{
		ID:               GenerateID("li"),
		OrderID:          orderID,
		ProductID:        product.ID,
		ProductName:      product.Name,
		ProductReference: product.Reference,
		Qty:              qty,
		UnitCost:         product.Cost,
		CreatedAt:        GetCurrentTime(),
	}
}

// ServiceCharge is a snapshot of a billable labor service applied to an order
type ServiceCharge struct {
	ID          string    `db:"id" json:"id"`
	OrderID     string    `db:"order_id" json:"-"`
	ServiceID   string    `db:"service_id" json:"service_id"`
	ServiceName string    `db:"service_name" json:"service_name"`
	Price       float64   `db:"price" json:"price"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewServiceCharge snapshots the service's name and current price
func NewServiceCharge(orderID string, svc Service) ServiceCharge {
	return ServiceCharge{
		ID:          GenerateID("sc"),
		OrderID:     orderID,
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		Price:       svc.Price,
		CreatedAt:   GetCurrentTime(),
	}
}
