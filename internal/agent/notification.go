package agent

import (
	"context"
	"errors"
	"time"
)

// ErrNotificationNotFound 表示通知不存在或已关闭。
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationOptions 对应宿主 showNotification 的选项。
type NotificationOptions struct {
	Body               string `json:"body"`
	Icon               string `json:"icon"`
	Badge              string `json:"badge"`
	Vibrate            []int  `json:"vibrate"`
	Tag                string `json:"tag"`
	RequireInteraction bool   `json:"requireInteraction"`
	Data               any    `json:"data"`
}

// Notification 是已展示的通知。
type Notification struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Options   NotificationOptions `json:"options"`
	CreatedAt time.Time           `json:"created_at"`
}

// Window 是被打开或聚焦的页面窗口。
type Window struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Focused  bool      `json:"focused"`
	OpenedAt time.Time `json:"opened_at"`
}

// Notifier 是宿主通知服务。同 tag 的通知相互替换。
type Notifier interface {
	ShowNotification(ctx context.Context, title string, opts NotificationOptions) (*Notification, error)
	// Close 关闭通知，不存在时返回 ErrNotificationNotFound。
	Close(ctx context.Context, id string) error
}

// WindowOpener 是宿主窗口管理服务。
type WindowOpener interface {
	// OpenWindow 打开 url；已有同 url 窗口时聚焦它。
	OpenWindow(ctx context.Context, url string) (*Window, error)
}

// NotificationClick 关闭被点击的通知，然后打开（或聚焦）站点根路径。
func (a *Agent) NotificationClick(ctx context.Context, id string) (*Window, error) {
	if err := a.notifier.Close(ctx, id); err != nil {
		return nil, err
	}
	return a.windows.OpenWindow(ctx, "/")
}
