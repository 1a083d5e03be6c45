package realtime

import (
	"encoding/json"
	"time"

	"training-portal/reporting-engine/internal/report"
)

// Envelope is the wire frame exchanged with the realtime report service:
// an event name plus a JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound actions.
const (
	actionSubscribe          = "subscribe"
	actionUnsubscribe        = "unsubscribe"
	actionUpdateSubscription = "update_subscription"
	actionManualUpdate       = "manual_update"
	actionSubscriptionStatus = "get_subscription_status"
	actionSystemStats        = "get_system_stats"
)

// Inbound push events.
const (
	eventReportData         = "report_data"
	eventReportError        = "report_error"
	eventSubscriptionStatus = "subscription_status"
	eventSystemNotification = "system_notification"
)

// responsePayload is the common shape of every acknowledgment. Responses
// are correlated to their request purely by RequestID; the event name the
// server chooses (with or without the request id suffixed) is irrelevant.
type responsePayload struct {
	RequestID      string          `json:"request_id"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// ReportData is a push carrying fresh report data for one subscription.
type ReportData struct {
	SubscriptionID string          `json:"subscription_id"`
	Type           string          `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data"`
}

// ReportError is a push reporting a server-side error for one subscription.
type ReportError struct {
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
}

// StatusChange is a push reporting a server-side subscription status change.
type StatusChange struct {
	SubscriptionID string                    `json:"subscription_id"`
	Status         report.SubscriptionStatus `json:"status"`
}

// Notification is a system-wide push not tied to a subscription.
type Notification struct {
	NotificationType string `json:"notification_type"` // error | warning | info
	Message          string `json:"message"`
}
