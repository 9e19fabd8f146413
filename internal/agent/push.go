package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/oct1/countdown-agent/internal/logging"
)

// ErrInvalidPayload 表示推送数据不是合法 JSON，仅使本次推送事件失败。
var ErrInvalidPayload = errors.New("invalid push payload")

const (
	DefaultNotificationTitle = "October 1st Countdown"
	DefaultNotificationBody  = "The countdown continues..."
	NotificationTag          = "countdown-notification"
)

// 通知图标与角标是内联 SVG。
const (
	notificationIcon  = `data:image/svg+xml,%3Csvg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 192 192"%3E%3Cdefs%3E%3ClinearGradient id="grad" x1="0%25" y1="0%25" x2="100%25" y2="100%25"%3E%3Cstop offset="0%25" stop-color="%23533483"/%3E%3Cstop offset="50%25" stop-color="%230f3460"/%3E%3Cstop offset="100%25" stop-color="%231a0b2e"/%3E%3C/linearGradient%3E%3C/defs%3E%3Crect width="192" height="192" fill="url(%23grad)" rx="20"/%3E%3Ctext x="96" y="80" text-anchor="middle" fill="white" font-size="48" font-weight="bold" font-family="Arial"%3EOCT%3C/text%3E%3Ctext x="96" y="140" text-anchor="middle" fill="white" font-size="72" font-weight="bold" font-family="Arial"%3E01%3C/text%3E%3C/svg%3E`
	notificationBadge = `data:image/svg+xml,%3Csvg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 96 96"%3E%3Ccircle cx="48" cy="48" r="48" fill="%231a0b2e"/%3E%3Ctext x="48" y="60" text-anchor="middle" fill="white" font-size="36" font-weight="bold"%3E1%3C/text%3E%3C/svg%3E`
)

var vibratePattern = []int{200, 100, 200}

// Push 解析推送数据并展示通知。空数据不展示任何通知，返回 (nil, nil)。
func (a *Agent) Push(ctx context.Context, data []byte) (*Notification, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		fields := logging.LifecycleFields("push", a.CacheName())
		a.logger.WithFields(fields).WithError(err).Warn("push_payload_invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload == nil {
		fields := logging.LifecycleFields("push", a.CacheName())
		a.logger.WithFields(fields).Warn("push_payload_invalid")
		return nil, fmt.Errorf("%w: null payload", ErrInvalidPayload)
	}

	title, body := payloadText(payload)
	opts := NotificationOptions{
		Body:               body,
		Icon:               notificationIcon,
		Badge:              notificationBadge,
		Vibrate:            append([]int(nil), vibratePattern...),
		Tag:                NotificationTag,
		RequireInteraction: false,
		Data:               payload,
	}

	n, err := a.notifier.ShowNotification(ctx, title, opts)
	if err != nil {
		return nil, fmt.Errorf("show notification: %w", err)
	}

	fields := logging.LifecycleFields("push", a.CacheName())
	fields["notification_id"] = n.ID
	fields["title"] = title
	a.logger.WithFields(fields).Info("notification_shown")
	return n, nil
}

// payloadText 取出 title/body。字符串、非零数字与 true 原样转为文本；
// 缺失、空串、0、false 与对象/数组使用默认文案。
func payloadText(payload any) (string, string) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return DefaultNotificationTitle, DefaultNotificationBody
	}
	return textOr(obj["title"], DefaultNotificationTitle), textOr(obj["body"], DefaultNotificationBody)
}

func textOr(v any, fallback string) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		if t != 0 && !math.IsNaN(t) {
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	case bool:
		if t {
			return "true"
		}
	}
	return fallback
}
