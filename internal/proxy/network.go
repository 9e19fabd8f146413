package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/oct1/countdown-agent/internal/cache"
	"github.com/oct1/countdown-agent/internal/server"
)

// NetworkFetcher 通过共享 http.Client 发送请求，并依据页面源站判定响应投递类型。
type NetworkFetcher struct {
	client *http.Client
	origin *url.URL
}

// NewNetworkFetcher 创建 fetcher，origin 为页面源站。
func NewNetworkFetcher(client *http.Client, origin string) (*NetworkFetcher, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	return &NetworkFetcher{client: client, origin: parsed}, nil
}

// Fetch 发送请求并完整读取正文。
func (f *NetworkFetcher) Fetch(ctx context.Context, req *cache.Request) (*cache.Response, error) {
	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(httpReq.Header, req.Header)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	header := http.Header{}
	server.CopyHeaders(header, resp.Header)
	header.Del("Content-Length")

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &cache.Response{
		URL:    finalURL,
		Status: resp.StatusCode,
		Header: header,
		Type:   f.classify(req.URL, finalURL, resp),
		Body:   payload,
	}, nil
}

// classify 判定投递类型：未跟随的 3xx 为 opaqueredirect，被跟随过的重定向同样不算 basic；
// 同源为 basic，跨源带 CORS 头为 cors，其余为 opaque。
func (f *NetworkFetcher) classify(requested, final string, resp *http.Response) cache.ResponseType {
	if resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Header.Get("Location") != "" {
		return cache.TypeOpaqueRedirect
	}
	if final != requested {
		return cache.TypeOpaqueRedirect
	}
	finalURL, err := url.Parse(final)
	if err != nil {
		return cache.TypeError
	}
	if sameOrigin(f.origin, finalURL) {
		return cache.TypeBasic
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		return cache.TypeCORS
	}
	return cache.TypeOpaque
}

func sameOrigin(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return false
	}
	return strings.EqualFold(a.Hostname(), b.Hostname()) && effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	default:
		return "80"
	}
}
