package domain

import "time"

// Priority is the handling urgency assigned to a routed message.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityUrgent   Priority = "urgent"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities so callers can compare them (normal < urgent < critical).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 2
	case PriorityUrgent:
		return 1
	}
	return 0
}

// ParsePriority maps a name to a Priority. ok is false for unknown names.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityNormal, PriorityUrgent, PriorityCritical:
		return p, true
	}
	return "", false
}

// RoutedMessage is the pipeline output: the canonical message plus its
// classification, priority and the customer it was associated with.
type RoutedMessage struct {
	Message        InboundMessage       `json:"message"`
	Classification ClassificationResult `json:"classification"`
	Priority       Priority             `json:"priority"`
	CustomerID     int64                `json:"customer_id,omitempty"`
	MessageID      int64                `json:"message_id,omitempty"`
	BatchID        string               `json:"batch_id,omitempty"`
}

// CustomerKey identifies a customer by sender within a channel.
type CustomerKey struct {
	Channel Channel `json:"channel"`
	Sender  string  `json:"sender"`
}

// Receipt is returned by the persistence layer for a stored message.
type Receipt struct {
	CustomerID  int64
	MessageID   int64
	NewCustomer bool
}

// MessageStatus tracks staff handling of a stored message.
type MessageStatus string

const (
	StatusUnread    MessageStatus = "unread"
	StatusRead      MessageStatus = "read"
	StatusReplied   MessageStatus = "replied"
	StatusForwarded MessageStatus = "forwarded"
	StatusArchived  MessageStatus = "archived"
)

// ParseMessageStatus maps a name to a MessageStatus. ok is false for unknown names.
func ParseMessageStatus(s string) (MessageStatus, bool) {
	switch st := MessageStatus(s); st {
	case StatusUnread, StatusRead, StatusReplied, StatusForwarded, StatusArchived:
		return st, true
	}
	return "", false
}

// StoredMessage is a routed message as read back from storage.
type StoredMessage struct {
	ID             int64                `json:"id"`
	CustomerID     int64                `json:"customer_id"`
	Message        InboundMessage       `json:"message"`
	Classification ClassificationResult `json:"classification"`
	Priority       Priority             `json:"priority"`
	Status         MessageStatus        `json:"status"`
	BatchID        string               `json:"batch_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Customer is the durable record a sender is associated with.
type Customer struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	InstagramHandle string     `json:"instagram_handle,omitempty"`
	ReviewHandle    string     `json:"review_handle,omitempty"`
	MessageCount    int        `json:"message_count"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
