// Package realtime maintains one logical connection to the realtime report
// service and multiplexes independent subscriptions over it. Every outbound
// action is correlated to its acknowledgment through an explicit pending
// table keyed by request id, so a call always resolves, fails with the
// server's error, or fails with a timeout; it never hangs.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/report"
)

// ConnStatus is the connection state of the manager.
type ConnStatus string

const (
	StatusDisconnected ConnStatus = "disconnected"
	StatusConnecting   ConnStatus = "connecting"
	StatusConnected    ConnStatus = "connected"
	StatusError        ConnStatus = "error"
)

// Request timeouts per action. Subscribe and manual updates may trigger a
// full report execution server-side, so they get the longer window.
const (
	subscribeTimeout = 10 * time.Second
	defaultTimeout   = 5 * time.Second

	// reconnectDelay spaces out reconnects after a server-initiated close
	// so a restarting server is not hit by a thundering herd.
	reconnectDelay = 5 * time.Second
)

// ErrRequestTimeout is returned when no response arrives within the
// action's window. The stale pending entry is removed so a late response
// cannot be misapplied.
var ErrRequestTimeout = errors.New("request timeout")

// ErrConnectionClosed is returned for requests in flight when the
// connection is torn down.
var ErrConnectionClosed = errors.New("connection closed")

// Manager owns the transport exclusively and tracks subscription state
// locally. Construct one per consumer and release it with Destroy; there is
// no ambient shared instance.
type Manager struct {
	transport Transport
	logger    *zap.Logger
	now       func() time.Time

	subscribeTimeout time.Duration
	defaultTimeout   time.Duration

	mu             sync.Mutex
	status         ConnStatus
	pending        map[string]chan responsePayload
	subs           map[string]*report.Subscription
	reconnectTimer *time.Timer
	destroyed      bool

	data          *broker[ReportData]
	errs          *broker[ReportError]
	statusChanges *broker[StatusChange]
	notifications *broker[Notification]
}

// Stats is an aggregate view over the tracked subscriptions, derived
// entirely locally; it never requires a round trip.
type Stats struct {
	TotalSubscriptions  int           `json:"total_subscriptions"`
	ActiveSubscriptions int           `json:"active_subscriptions"`
	TotalUpdates        int           `json:"total_updates"`
	TotalErrors         int           `json:"total_errors"`
	OldestSubscription  time.Duration `json:"oldest_subscription"`
	Connection          ConnStatus    `json:"connection"`
}

// UnsubscribeResult is the per-subscription outcome of UnsubscribeAll.
type UnsubscribeResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewManager creates a manager bound to the given transport.
func NewManager(transport Transport, logger *zap.Logger) *Manager {
	m := &Manager{
		transport:        transport,
		logger:           logger,
		now:              time.Now,
		subscribeTimeout: subscribeTimeout,
		defaultTimeout:   defaultTimeout,
		status:           StatusDisconnected,
		pending:       make(map[string]chan responsePayload),
		subs:          make(map[string]*report.Subscription),
		data:          newBroker[ReportData](),
		errs:          newBroker[ReportError](),
		statusChanges: newBroker[StatusChange](),
		notifications: newBroker[Notification](),
	}
	transport.Bind(Callbacks{
		OnConnect:    m.onConnect,
		OnMessage:    m.onMessage,
		OnDisconnect: m.onDisconnect,
	})
	return m
}

// =====================================================
// Connection lifecycle
// =====================================================

// Connect establishes the transport connection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return fmt.Errorf("manager destroyed")
	}
	if m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return fmt.Errorf("already %s", m.status)
	}
	m.status = StatusConnecting
	m.mu.Unlock()

	if err := m.transport.Connect(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusError
		m.mu.Unlock()
		m.errs.publish(ReportError{Error: err.Error()})
		return err
	}
	return nil
}

// Disconnect closes the connection without scheduling a reconnect. The close
// is locally initiated, so the manager transitions itself rather than waiting
// on a transport callback: pending requests fail with ErrConnectionClosed and
// tracked subscriptions are kept so a later Reconnect can re-establish them.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	if !m.destroyed {
		m.status = StatusDisconnected
	}
	m.failPendingLocked()
	m.mu.Unlock()
	m.transport.Close()
}

// Reconnect closes any current connection and connects again immediately,
// bypassing the automatic backoff policy.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Disconnect()
	return m.Connect(ctx)
}

// Destroy tears the manager down for good: the connection, every pending
// request, the reconnect timer and all observer channels are released.
func (m *Manager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	m.cancelReconnectLocked()
	m.failPendingLocked()
	for id, sub := range m.subs {
		sub.Status = report.SubscriptionClosed
		delete(m.subs, id)
	}
	m.mu.Unlock()

	m.transport.Close()
	m.data.close()
	m.errs.close()
	m.statusChanges.close()
	m.notifications.close()
}

// Status returns the current connection status.
func (m *Manager) Status() ConnStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) onConnect() {
	m.mu.Lock()
	m.status = StatusConnected
	m.mu.Unlock()
	m.logger.Info("realtime connection established")
}

func (m *Manager) onDisconnect(err error, serverClosed bool) {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	if err != nil && !serverClosed {
		m.status = StatusError
	} else {
		m.status = StatusDisconnected
	}
	m.failPendingLocked()

	if serverClosed && m.reconnectTimer == nil {
		m.reconnectTimer = time.AfterFunc(reconnectDelay, m.autoReconnect)
	}
	m.mu.Unlock()

	if err != nil {
		m.errs.publish(ReportError{Error: err.Error()})
	}
	m.logger.Info("realtime connection lost",
		zap.Bool("server_closed", serverClosed),
		zap.Error(err))
}

func (m *Manager) autoReconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.destroyed || m.status == StatusConnected || m.status == StatusConnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.subscribeTimeout)
	defer cancel()
	if err := m.Connect(ctx); err != nil {
		m.logger.Warn("automatic reconnect failed", zap.Error(err))
	}
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// failPendingLocked drops every pending entry; waiters observe the closed
// channel and fail with ErrConnectionClosed.
func (m *Manager) failPendingLocked() {
	for id, ch := range m.pending {
		delete(m.pending, id)
		close(ch)
	}
}

// =====================================================
// Request/response correlation
// =====================================================

func (m *Manager) request(ctx context.Context, action string, payload map[string]any, timeout time.Duration) (responsePayload, error) {
	requestID := uuid.NewString()
	payload["request_id"] = requestID

	ch := make(chan responsePayload, 1)
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return responsePayload{}, fmt.Errorf("manager destroyed")
	}
	m.pending[requestID] = ch
	m.mu.Unlock()

	defer m.removePending(requestID)

	body, err := marshalPayload(payload)
	if err != nil {
		return responsePayload{}, err
	}
	if err := m.transport.Send(ctx, Envelope{Event: action, Payload: body}); err != nil {
		return responsePayload{}, fmt.Errorf("failed to send %s: %w", action, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return responsePayload{}, ErrConnectionClosed
		}
		if !resp.Success {
			if resp.Error == "" {
				resp.Error = "server reported failure"
			}
			return resp, fmt.Errorf("%s failed: %s", action, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		return responsePayload{}, ErrRequestTimeout
	case <-ctx.Done():
		return responsePayload{}, ctx.Err()
	}
}

func (m *Manager) removePending(requestID string) {
	m.mu.Lock()
	delete(m.pending, requestID)
	m.mu.Unlock()
}

// PendingRequests reports how many requests are awaiting a response.
func (m *Manager) PendingRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// =====================================================
// Inbound routing
// =====================================================

func (m *Manager) onMessage(env Envelope) {
	// Responses first: any payload whose request_id matches a pending entry
	// resolves that request, regardless of the event name the server used.
	var probe struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(env.Payload, &probe); err == nil && probe.RequestID != "" {
		m.mu.Lock()
		ch, ok := m.pending[probe.RequestID]
		if ok {
			delete(m.pending, probe.RequestID)
		}
		m.mu.Unlock()
		if ok {
			var resp responsePayload
			if err := json.Unmarshal(env.Payload, &resp); err != nil {
				resp = responsePayload{RequestID: probe.RequestID, Error: "malformed response"}
			}
			ch <- resp
			close(ch)
			return
		}
	}

	switch env.Event {
	case eventReportData:
		m.handleReportData(env.Payload)
	case eventReportError:
		m.handleReportError(env.Payload)
	case eventSubscriptionStatus:
		m.handleStatusChange(env.Payload)
	case eventSystemNotification:
		m.handleNotification(env.Payload)
	default:
		m.logger.Debug("unknown event", zap.String("event", env.Event))
	}
}

func (m *Manager) handleReportData(payload json.RawMessage) {
	var data ReportData
	if err := json.Unmarshal(payload, &data); err != nil {
		m.logger.Warn("malformed report_data payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	if sub, ok := m.subs[data.SubscriptionID]; ok {
		sub.UpdateCount++
		now := m.now()
		sub.LastUpdate = &now
	}
	// An unknown subscription id (e.g. a push racing an unsubscribe) is
	// simply not attributed; raw observers still receive it below.
	m.mu.Unlock()

	m.data.publish(data)
}

func (m *Manager) handleReportError(payload json.RawMessage) {
	var repErr ReportError
	if err := json.Unmarshal(payload, &repErr); err != nil {
		m.logger.Warn("malformed report_error payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	if sub, ok := m.subs[repErr.SubscriptionID]; ok {
		sub.ErrorCount++
		sub.LastError = repErr.Error
		sub.Status = report.SubscriptionError
	}
	m.mu.Unlock()

	m.errs.publish(repErr)
}

func (m *Manager) handleStatusChange(payload json.RawMessage) {
	var change StatusChange
	if err := json.Unmarshal(payload, &change); err != nil {
		m.logger.Warn("malformed subscription_status payload", zap.Error(err))
		return
	}

	m.mu.Lock()
	if sub, ok := m.subs[change.SubscriptionID]; ok && change.Status != "" {
		sub.Status = change.Status
	}
	m.mu.Unlock()

	m.statusChanges.publish(change)
}

func (m *Manager) handleNotification(payload json.RawMessage) {
	var note Notification
	if err := json.Unmarshal(payload, &note); err != nil {
		m.logger.Warn("malformed system_notification payload", zap.Error(err))
		return
	}
	m.notifications.publish(note)
}

// =====================================================
// Subscription operations
// =====================================================

// Subscribe registers a standing subscription and tracks it locally once the
// server acknowledges with its assigned id.
func (m *Manager) Subscribe(ctx context.Context, req report.SubscribeRequest) (*report.Subscription, error) {
	resp, err := m.request(ctx, actionSubscribe, map[string]any{
		"type":             req.Type,
		"config":           req.Config,
		"update_frequency": req.UpdateFrequency,
		"auto_refresh":     req.AutoRefresh,
	}, m.subscribeTimeout)
	if err != nil {
		return nil, err
	}
	if resp.SubscriptionID == "" {
		return nil, fmt.Errorf("subscribe response missing subscription id")
	}

	sub := &report.Subscription{
		ID:        resp.SubscriptionID,
		Config:    req,
		Status:    report.SubscriptionActive,
		CreatedAt: m.now(),
	}
	m.mu.Lock()
	m.subs[sub.ID] = sub
	m.mu.Unlock()

	m.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("type", string(req.Type)))

	out := *sub
	return &out, nil
}

// Unsubscribe removes a subscription server-side and drops local tracking.
func (m *Manager) Unsubscribe(ctx context.Context, subscriptionID string) error {
	_, err := m.request(ctx, actionUnsubscribe, map[string]any{
		"subscription_id": subscriptionID,
	}, m.defaultTimeout)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.subs, subscriptionID)
	m.mu.Unlock()

	m.logger.Info("subscription removed", zap.String("subscription_id", subscriptionID))
	return nil
}

// UpdateSubscription pushes configuration updates for an existing
// subscription.
func (m *Manager) UpdateSubscription(ctx context.Context, subscriptionID string, updates map[string]any) error {
	_, err := m.request(ctx, actionUpdateSubscription, map[string]any{
		"subscription_id": subscriptionID,
		"updates":         updates,
	}, m.defaultTimeout)
	return err
}

// ManualUpdate asks the server to refresh a subscription immediately.
func (m *Manager) ManualUpdate(ctx context.Context, subscriptionID string) error {
	_, err := m.request(ctx, actionManualUpdate, map[string]any{
		"subscription_id": subscriptionID,
	}, m.subscribeTimeout)
	return err
}

// SubscriptionStatus asks the server for its view of one subscription.
func (m *Manager) SubscriptionStatus(ctx context.Context, subscriptionID string) (json.RawMessage, error) {
	resp, err := m.request(ctx, actionSubscriptionStatus, map[string]any{
		"subscription_id": subscriptionID,
	}, m.defaultTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// SystemStats asks the server for service-wide statistics.
func (m *Manager) SystemStats(ctx context.Context) (json.RawMessage, error) {
	resp, err := m.request(ctx, actionSystemStats, map[string]any{}, m.defaultTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UnsubscribeAll attempts every tracked subscription's unsubscribe
// independently and collects per-subscription results; one server-side
// failure does not block cleanup of the others.
func (m *Manager) UnsubscribeAll(ctx context.Context) []UnsubscribeResult {
	m.mu.Lock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	results := make([]UnsubscribeResult, 0, len(ids))
	for _, id := range ids {
		if err := m.Unsubscribe(ctx, id); err != nil {
			results = append(results, UnsubscribeResult{ID: id, Error: err.Error()})
		} else {
			results = append(results, UnsubscribeResult{ID: id, Success: true})
		}
	}
	return results
}

// Subscriptions returns a snapshot of the tracked subscriptions.
func (m *Manager) Subscriptions() []report.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]report.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, *sub)
	}
	return out
}

// GetSubscription returns a copy of one tracked subscription.
func (m *Manager) GetSubscription(id string) (report.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return report.Subscription{}, false
	}
	return *sub, true
}

// Stats folds over the tracked subscription set.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Connection: m.status}
	now := m.now()
	for _, sub := range m.subs {
		stats.TotalSubscriptions++
		if sub.Status == report.SubscriptionActive {
			stats.ActiveSubscriptions++
		}
		stats.TotalUpdates += sub.UpdateCount
		stats.TotalErrors += sub.ErrorCount
		if age := now.Sub(sub.CreatedAt); age > stats.OldestSubscription {
			stats.OldestSubscription = age
		}
	}
	return stats
}

// =====================================================
// Observer channels
// =====================================================

// Data returns an observer channel for report_data pushes.
func (m *Manager) Data(buffer int) (<-chan ReportData, func()) {
	return m.data.subscribe(buffer)
}

// Errors returns an observer channel for report errors and connection-level
// errors (the latter carry an empty subscription id).
func (m *Manager) Errors(buffer int) (<-chan ReportError, func()) {
	return m.errs.subscribe(buffer)
}

// StatusChanges returns an observer channel for subscription status pushes.
func (m *Manager) StatusChanges(buffer int) (<-chan StatusChange, func()) {
	return m.statusChanges.subscribe(buffer)
}

// Notifications returns an observer channel for system notifications.
func (m *Manager) Notifications(buffer int) (<-chan Notification, func()) {
	return m.notifications.subscribe(buffer)
}
