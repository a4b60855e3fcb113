package models

// NotificationChannel is a delivery transport name
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelWhatsApp NotificationChannel = "whatsapp"
	ChannelSMS      NotificationChannel = "sms"
)

// Notification is a delivery request handed to the notification dispatcher
type Notification struct {
	Channel    NotificationChannel `json:"channel"`
	Recipient  string              `json:"recipient"`
	Subject    string              `json:"subject,omitempty"`
	Content    string              `json:"content"`
	BookingRef string              `json:"booking_ref,omitempty"`
	TicketRef  string              `json:"ticket_ref,omitempty"`
}
