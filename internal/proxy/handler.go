package proxy

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/oct1/countdown-agent/internal/agent"
	"github.com/oct1/countdown-agent/internal/cache"
	"github.com/oct1/countdown-agent/internal/logging"
	"github.com/oct1/countdown-agent/internal/server"
)

// Interceptor 是 Handler 依赖的代理能力，由 *agent.Agent 实现。
type Interceptor interface {
	Fetch(ctx context.Context, req *cache.Request) (*agent.FetchResult, error)
	ResolveURL(path string) string
}

// Handler 把每个页面请求转换为一次 fetch 事件，并把结果写回 Fiber 响应。
type Handler struct {
	agent  Interceptor
	logger *logrus.Logger
}

// NewHandler constructs a fetch handler backed by the agent.
func NewHandler(a Interceptor, logger *logrus.Logger) *Handler {
	return &Handler{
		agent:  a,
		logger: logger,
	}
}

// Handle 执行 cache-first 查找与网络回退，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	req := &cache.Request{
		Method: c.Method(),
		URL:    h.agent.ResolveURL(originPath(c)),
		Header: requestHeaders(c),
		Body:   append([]byte(nil), c.Body()...),
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := h.agent.Fetch(ctx, req)
	if err != nil {
		h.logResult(requestID, req, nil, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "network_failed")
	}
	if result.Response == nil {
		h.logResult(requestID, req, result, started, nil)
		return h.writeError(c, fiber.StatusBadGateway, "empty_response")
	}

	resp := result.Response
	copyResponseHeaders(c, resp.Header)
	c.Set("X-Cache-Hit", strconv.FormatBool(result.CacheHit))
	c.Set("X-Cache-Generation", result.Generation)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.Status)
	h.logResult(requestID, req, result, started, nil)

	if req.Method == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	requestID string,
	req *cache.Request,
	result *agent.FetchResult,
	started time.Time,
	err error,
) {
	var (
		cacheHit   bool
		generation string
	)
	if result != nil {
		cacheHit = result.CacheHit
		generation = result.Generation
	}
	fields := logging.FetchFields(requestID, req.Method, req.URL, generation, cacheHit)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if result != nil && result.Response != nil {
		fields["status"] = result.Response.Status
		fields["response_type"] = string(result.Response.Type)
		fields["write_back"] = result.WriteBack != nil
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("fetch_failed")
		return
	}
	h.logger.WithFields(fields).Info("fetch_complete")
}

// originPath 只取请求的路径与查询串；请求行中的 scheme 与 host 不参与拼接源站地址。
func originPath(c fiber.Ctx) string {
	path := c.Path()
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		return path + "?" + string(query)
	}
	return path
}

// requestHeaders 复制请求头，去掉 hop-by-hop 与 Accept-Encoding，由 http.Client 处理压缩。
func requestHeaders(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if server.IsHopByHopHeader(k) {
			return
		}
		header.Add(k, string(value))
	})
	header.Del("Accept-Encoding")
	header.Del("Host")
	header.Del("Content-Length")
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Append(key, value)
		}
	}
}
