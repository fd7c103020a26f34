package routing

import "frontdesk/internal/domain"

var priorities = map[domain.Intent]domain.Priority{
	domain.IntentComplaint:   domain.PriorityCritical,
	domain.IntentReservation: domain.PriorityUrgent,
	domain.IntentDelivery:    domain.PriorityUrgent,
}

// ResolvePriority maps an intent to its handling priority. Unknown labels are normal.
func ResolvePriority(in domain.Intent) domain.Priority {
	if p, ok := priorities[in]; ok {
		return p
	}
	return domain.PriorityNormal
}
