package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/oct1/countdown-agent/internal/agent"
	"github.com/oct1/countdown-agent/internal/cache"
)

// Lifecycle 是管理接口依赖的代理能力，由 *agent.Agent 实现。
type Lifecycle interface {
	CacheName() string
	Storage() cache.Storage
	Install(ctx context.Context) agent.InstallReport
	Activate(ctx context.Context) agent.ActivateReport
	Sync(ctx context.Context, tag string) agent.SyncResult
	Push(ctx context.Context, data []byte) (*agent.Notification, error)
	NotificationClick(ctx context.Context, id string) (*agent.Window, error)
}

// HostState 提供当前通知与窗口列表，由 notify.Center 实现。
type HostState interface {
	Notifications() []agent.Notification
	Windows() []agent.Window
}

// RegisterLifecycleRoutes 在 /-/ 下暴露生命周期事件触发与诊断接口。
func RegisterLifecycleRoutes(app *fiber.App, lc Lifecycle, host HostState) {
	if app == nil || lc == nil {
		return
	}

	app.Post("/-/install", func(c fiber.Ctx) error {
		report := lc.Install(requestContext(c))
		return c.JSON(encodeInstall(report))
	})

	app.Post("/-/activate", func(c fiber.Ctx) error {
		report := lc.Activate(requestContext(c))
		return c.JSON(encodeActivate(report))
	})

	app.Post("/-/sync", func(c fiber.Ctx) error {
		var body struct {
			Tag string `json:"tag"`
		}
		if len(c.Body()) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tag_required"})
		}
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
		return c.JSON(lc.Sync(requestContext(c), body.Tag))
	})

	app.Post("/-/push", func(c fiber.Ctx) error {
		n, err := lc.Push(requestContext(c), c.Body())
		switch {
		case errors.Is(err, agent.ErrInvalidPayload):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "notification_failed"})
		case n == nil:
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Status(fiber.StatusCreated).JSON(n)
	})

	app.Post("/-/notifications/:id/click", func(c fiber.Ctx) error {
		win, err := lc.NotificationClick(requestContext(c), c.Params("id"))
		if errors.Is(err, agent.ErrNotificationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "notification_not_found"})
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "open_window_failed"})
		}
		return c.JSON(win)
	})

	if host != nil {
		app.Get("/-/notifications", func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"notifications": emptyIfNil(host.Notifications())})
		})
		app.Get("/-/windows", func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"windows": emptyIfNil(host.Windows())})
		})
	}

	app.Get("/-/caches", func(c fiber.Ctx) error {
		caches, err := listCaches(requestContext(c), lc.Storage())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list_caches_failed"})
		}
		return c.JSON(fiber.Map{
			"current": lc.CacheName(),
			"caches":  caches,
		})
	})
}

type installPayload struct {
	Generation string   `json:"generation"`
	Assets     []string `json:"assets"`
	Error      string   `json:"error,omitempty"`
}

type activatePayload struct {
	Current   string            `json:"current"`
	Examined  int               `json:"examined"`
	Deleted   []string          `json:"deleted"`
	Failed    map[string]string `json:"failed,omitempty"`
	Error     string            `json:"error,omitempty"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

type cachePayload struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

func encodeInstall(r agent.InstallReport) installPayload {
	payload := installPayload{Generation: r.Generation, Assets: emptyIfNil(r.Assets)}
	if r.Err != nil {
		payload.Error = r.Err.Error()
	}
	return payload
}

func encodeActivate(r agent.ActivateReport) activatePayload {
	payload := activatePayload{
		Current:   r.Current,
		Examined:  r.Examined,
		Deleted:   emptyIfNil(r.Deleted),
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	if len(r.Failed) > 0 {
		payload.Failed = make(map[string]string, len(r.Failed))
		for name, err := range r.Failed {
			payload.Failed[name] = err.Error()
		}
	}
	if err := r.Err(); err != nil {
		payload.Error = err.Error()
	}
	return payload
}

func listCaches(ctx context.Context, storage cache.Storage) ([]cachePayload, error) {
	names, err := storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]cachePayload, 0, len(names))
	for _, name := range names {
		store, err := storage.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		result = append(result, cachePayload{Name: name, Entries: len(keys)})
	}
	return result, nil
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
