// Package notify provides the in-process notification and window services the
// agent talks to. Notifications sharing a tag replace each other; opening a
// URL that already has a window focuses that window instead of opening a new
// one.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oct1/countdown-agent/internal/agent"
)

// Center 同时实现 agent.Notifier 与 agent.WindowOpener。
type Center struct {
	logger *logrus.Logger
	now    func() time.Time

	mu            sync.Mutex
	notifications map[string]*agent.Notification
	windows       []*agent.Window
}

// NewCenter 构建空的通知中心。
func NewCenter(logger *logrus.Logger) *Center {
	return &Center{
		logger:        logger,
		now:           time.Now,
		notifications: make(map[string]*agent.Notification),
	}
}

// ShowNotification 展示通知；同 tag 的旧通知被替换。
func (c *Center) ShowNotification(ctx context.Context, title string, opts agent.NotificationOptions) (*agent.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := &agent.Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Options:   opts,
		CreatedAt: c.now().UTC(),
	}

	c.mu.Lock()
	if opts.Tag != "" {
		for id, existing := range c.notifications {
			if existing.Options.Tag == opts.Tag {
				delete(c.notifications, id)
			}
		}
	}
	c.notifications[n.ID] = n
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"action":          "show_notification",
			"notification_id": n.ID,
			"tag":             opts.Tag,
		}).Debug(title)
	}
	return n, nil
}

// Close 关闭通知。
func (c *Center) Close(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.notifications[id]; !ok {
		return agent.ErrNotificationNotFound
	}
	delete(c.notifications, id)
	return nil
}

// Notifications 返回当前展示中的通知，按创建时间排序。
func (c *Center) Notifications() []agent.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]agent.Notification, 0, len(c.notifications))
	for _, n := range c.notifications {
		list = append(list, *n)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// OpenWindow 聚焦已有同 url 窗口，否则新开窗口。被返回的窗口是唯一聚焦的窗口。
func (c *Center) OpenWindow(ctx context.Context, url string) (*agent.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var target *agent.Window
	for _, w := range c.windows {
		w.Focused = false
		if target == nil && w.URL == url {
			target = w
		}
	}
	if target == nil {
		target = &agent.Window{ID: uuid.NewString(), URL: url, OpenedAt: c.now().UTC()}
		c.windows = append(c.windows, target)
	}
	target.Focused = true

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"action":    "open_window",
			"window_id": target.ID,
			"url":       url,
		}).Info("window_focused")
	}
	copied := *target
	return &copied, nil
}

// Windows 返回已打开的窗口快照。
func (c *Center) Windows() []agent.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]agent.Window, len(c.windows))
	for i, w := range c.windows {
		list[i] = *w
	}
	return list
}
