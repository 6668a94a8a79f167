package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// ServiceOrder is one repair ticket ("OS") tracking a client's equipment.
// ClientName, TechnicianName and every line-item field are snapshots taken
// at write time and are never refreshed from the catalog.
type ServiceOrder struct {
	ID                string         `db:"id" json:"id"`
	OrderNumber       string         `db:"order_number" json:"order_number"`
	ClientID          string         `db:"client_id" json:"client_id"`
	ClientName        string         `db:"client_name" json:"client_name"`
	Status            OrderStatus    `db:"status" json:"status"`
	EntryDate         time.Time      `db:"entry_date" json:"entry_date"`
	DiagnosisInitial  string         `db:"diagnosis_initial" json:"diagnosis_initial,omitempty"`
	InitialPhotos     pq.StringArray `db:"initial_photos" json:"initial_photos"`
	TechnicianID      *string        `db:"technician_id" json:"technician_id,omitempty"`
	TechnicianName    *string        `db:"technician_name" json:"technician_name,omitempty"`
	WarrantyDays      int            `db:"warranty_days" json:"warranty_days,omitempty"`
	DeliveryDate      *time.Time     `db:"delivery_date" json:"delivery_date,omitempty"`
	WarrantyExpiresAt *time.Time     `db:"warranty_expires_at" json:"warranty_expires_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`

	Products []LineItem      `db:"-" json:"products"`
	Services []ServiceCharge `db:"-" json:"services"`
}

// NewServiceOrderParams groups what intake captures for a new ticket
type NewServiceOrderParams struct {
	Client           Client
	OrderNumber      string
	EntryDate        time.Time
	DiagnosisInitial string
	InitialPhotos    []string
	WarrantyDays     int
	CreatedAt        time.Time
}

// NewServiceOrder creates an Open, unassigned order with empty line items
func NewServiceOrder(p NewServiceOrderParams) *ServiceOrder {
	now := p.CreatedAt
	if now.IsZero() {
		now = GetCurrentTime()
	}

	entry := p.EntryDate
	if entry.IsZero() {
		entry = now
	}

	photos := make(pq.StringArray, len(p.InitialPhotos))
	copy(photos, p.InitialPhotos)

	return &ServiceOrder{
		ID:               GenerateID("so"),
		OrderNumber:      p.OrderNumber,
		ClientID:         p.Client.ID,
		ClientName:       p.Client.Name,
		Status:           OrderStatusOpen,
		EntryDate:        DateOnly(entry),
		DiagnosisInitial: p.DiagnosisInitial,
		InitialPhotos:    photos,
		WarrantyDays:     p.WarrantyDays,
		CreatedAt:        now,
		UpdatedAt:        now,
		Products:         []LineItem{},
		Services:         []ServiceCharge{},
	}
}

// IsAssigned reports whether a technician has claimed the order
func (o *ServiceOrder) IsAssigned() bool {
	return o.TechnicianID != nil && *o.TechnicianID != ""
}

// Close stamps delivery and, when a warranty was agreed, its expiry
func (o *ServiceOrder) Close(at time.Time) {
	delivered := at.UTC()
	o.DeliveryDate = &delivered

	if o.WarrantyDays > 0 {
		expires := delivered.AddDate(0, 0, o.WarrantyDays)
		o.WarrantyExpiresAt = &expires
	}
}

// Totals is the billing summary computed from line-item snapshots
type Totals struct {
	Parts float64 `json:"parts"`
	Labor float64 `json:"labor"`
	Total float64 `json:"total"`
}

// Totals sums parts (qty x unit cost) and labor charges
func (o *ServiceOrder) Totals() Totals {
	var t Totals

	for _, item := range o.Products {
		t.Parts += float64(item.Qty) * item.UnitCost
	}
	for _, charge := range o.Services {
		t.Labor += charge.Price
	}

	t.Total = t.Parts + t.Labor
	return t
}

// MarshalJSON adds the computed totals to the stored fields
func (o ServiceOrder) MarshalJSON() ([]byte, error) {
	type stored ServiceOrder

	return json.Marshal(struct {
		stored
		Totals Totals `json:"totals"`
	}{stored(o), o.Totals()})
}

// Clone returns a deep copy so stores can hand out orders without sharing slices
func (o *ServiceOrder) Clone() *ServiceOrder {
	c := *o

	c.InitialPhotos = append(pq.StringArray(nil), o.InitialPhotos...)
	c.Products = append([]LineItem{}, o.Products...)
	c.Services = append([]ServiceCharge{}, o.Services...)

	if o.TechnicianID != nil {
		id := *o.TechnicianID
		c.TechnicianID = &id
	}
	if o.TechnicianName != nil {
		name := *o.TechnicianName
		c.TechnicianName = &name
	}
	if o.DeliveryDate != nil {
		d := *o.DeliveryDate
		c.DeliveryDate = &d
	}
	if o.WarrantyExpiresAt != nil {
		w := *o.WarrantyExpiresAt
		c.WarrantyExpiresAt = &w
	}

	return &c
}
