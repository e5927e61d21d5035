package model

import "time"

// DeliveryStatus of a row in email_delivery_log.  A pending row is a
// reservation held while the provider call is in flight.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
)

// EmailDelivery mirrors `email_delivery_log`.  (UserID, LifecycleKey) is
// unique: at most one successful send per user per lifecycle key.
type EmailDelivery struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	EmailTo      string         `json:"email_to"`
	TemplateID   string         `json:"template_id"`
	LifecycleKey string         `json:"lifecycle_key"`
	Subject      *string        `json:"subject"`
	Status       DeliveryStatus `json:"status"`
	MessageID    *string        `json:"message_id"`
	ReservedAt   time.Time      `json:"reserved_at"`
	CalledAt     *time.Time     `json:"provider_called_at"`
	SentAt       *time.Time     `json:"sent_at"`
}
