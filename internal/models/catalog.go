package models

import "time"

// Client is a customer who brings equipment in for repair
type Client struct {
	ID        string    `db:"id" json:"id" yaml:"id"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Phone     string    `db:"phone" json:"phone,omitempty" yaml:"phone"`
	Email     string    `db:"email" json:"email,omitempty" yaml:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// Role is the access profile of a user in the technician directory
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "tecnico"
)

// Technician is a user who can claim and work service orders
type Technician struct {
	ID        string    `db:"id" json:"id" yaml:"id"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Email     string    `db:"email" json:"email,omitempty" yaml:"email"`
	Role      Role      `db:"role" json:"role" yaml:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// Product is a stocked part. Qty never drops below zero.
type Product struct {
	ID        string    `db:"id" json:"id" yaml:"id"`
	Reference string    `db:"reference" json:"reference" yaml:"reference"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Qty       int       `db:"qty" json:"qty" yaml:"qty"`
	MinQty    int       `db:"min_qty" json:"min_qty,omitempty" yaml:"min_qty"`
	Cost      float64   `db:"cost" json:"cost" yaml:"cost"`
	Location  string    `db:"location" json:"location,omitempty" yaml:"location"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// BelowMinimum reports whether a product with a configured minimum needs restocking
func (p Product) BelowMinimum() bool {
	return p.MinQty > 0 && p.Qty < p.MinQty
}

// Service is a billable labor item from the service catalog
type Service struct {
	ID        string    `db:"id" json:"id" yaml:"id"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Price     float64   `db:"price" json:"price" yaml:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"-"`
}
