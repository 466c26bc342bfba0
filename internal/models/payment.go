package models

import "time"

// Payment maps to the `payments` table. Rows are created only by initiation
// and never deleted.
type Payment struct {
	ID              uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Pidx            *string   `gorm:"column:pidx;size:100;uniqueIndex" json:"pidx"`
	PurchaseOrderID string    `gorm:"column:purchase_order_id;size:100;uniqueIndex" json:"purchase_order_id"`
	BookingID       uint      `gorm:"column:booking_id;index;not null" json:"booking_id"`
	Status          Status    `gorm:"column:status;size:20;index;not null" json:"status"`
	Amount          int64     `gorm:"column:amount;not null" json:"amount"`
	ProductName     string    `gorm:"column:product_name;size:255" json:"product_name"`
	CustomerName    string    `gorm:"column:customer_name;size:255" json:"customer_name"`
	CustomerEmail   string    `gorm:"column:customer_email;size:255" json:"customer_email"`
	CustomerPhone   string    `gorm:"column:customer_phone;size:50" json:"customer_phone"`
	PaymentURL      string    `gorm:"column:payment_url;type:text" json:"payment_url"`
	GatewayRef      string    `gorm:"column:gateway_ref;size:100" json:"gateway_ref"`
	FailureReason   string    `gorm:"column:failure_reason;size:255" json:"failure_reason"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// PidxValue returns the gateway reference or "" when not yet assigned.
func (p *Payment) PidxValue() string {
	if p.Pidx == nil {
		return ""
	}
	return *p.Pidx
}

// View returns the read-only projection exposed by the status endpoint.
func (p *Payment) View() PaymentView {
	return PaymentView{
		ID:           p.ID,
		Pidx:         p.PidxValue(),
		BookingID:    p.BookingID,
		Status:       p.Status,
		Amount:       p.Amount,
		CustomerName: p.CustomerName,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// PaymentView is the client-side projection of a Payment.
type PaymentView struct {
	ID           uint      `json:"id"`
	Pidx         string    `json:"pidx"`
	BookingID    uint      `json:"bookingId"`
	Status       Status    `json:"status"`
	Amount       int64     `json:"amount"`
	CustomerName string    `json:"customerName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
