package services

import (
	"context"
	"sync"
)

type notificationCollectorKey struct{}

// NotificationCollector accumulates the notifications raised while serving one request.
type NotificationCollector struct {
	mu    sync.Mutex
	items []Notification
}

// WithNotificationCollector attaches a fresh collector to ctx.
func WithNotificationCollector(ctx context.Context) (context.Context, *NotificationCollector) {
	collector := &NotificationCollector{}
	return context.WithValue(ctx, notificationCollectorKey{}, collector), collector
}

// Notifications returns a copy of the collected notifications in emission order.
func (c *NotificationCollector) Notifications() []Notification {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return nil
	}
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

func (c *NotificationCollector) add(n Notification) {
	c.mu.Lock()
	c.items = append(c.items, n)
	c.mu.Unlock()
}

func collectorFromContext(ctx context.Context) *NotificationCollector {
	if ctx == nil {
		return nil
	}
	collector, _ := ctx.Value(notificationCollectorKey{}).(*NotificationCollector)
	return collector
}

// deliverNotification hands n to the request collector, when present, and to the injected notifier.
func deliverNotification(ctx context.Context, notifier Notifier, n Notification) {
	if collector := collectorFromContext(ctx); collector != nil {
		collector.add(n)
	}
	if notifier != nil {
		notifier.Notify(ctx, n)
	}
}
