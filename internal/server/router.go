package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FetchHandler describes the component that answers intercepted page
// requests. It allows injecting fake handlers during tests.
type FetchHandler interface {
	Handle(fiber.Ctx) error
}

// FetchHandlerFunc adapts a function to the FetchHandler interface.
type FetchHandlerFunc func(fiber.Ctx) error

// Handle makes FetchHandlerFunc satisfy FetchHandler.
func (f FetchHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Fetch      FetchHandler
	ListenPort int
}

const contextKeyRequestID = "_countdown_request_id"

// AdminPrefix 是管理与诊断接口的路径前缀，不会被当作页面请求拦截。
const AdminPrefix = "/-/"

// NewApp builds a Fiber application that routes every non-admin request to
// the fetch handler.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Fetch == nil {
		return nil, errors.New("fetch handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isAdminPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Fetch.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isAdminPath(path string) bool {
	return strings.HasPrefix(path, AdminPrefix)
}
