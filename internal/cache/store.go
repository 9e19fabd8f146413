package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Storage 对应宿主平台的缓存存储：按代号（generation）划分多个 Store。
type Storage interface {
	// Open 打开（不存在则创建）指定代号的缓存。
	Open(ctx context.Context, name string) (Store, error)

	// Match 按创建顺序在所有代号中查找请求，未命中返回 ErrNotFound。
	Match(ctx context.Context, req *Request) (*Response, error)

	// Keys 按创建顺序返回所有代号。
	Keys(ctx context.Context) ([]string, error)

	// Delete 删除整个代号，返回该代号此前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	Close() error
}

// Store 是单个代号下的请求 → 响应映射。
type Store interface {
	Name() string

	// Match 查找请求对应的缓存响应，未命中返回 ErrNotFound。
	Match(ctx context.Context, req *Request) (*Response, error)

	// Put 以请求为键写入响应，同键覆盖。非 GET 请求返回 ErrNotCacheable。
	Put(ctx context.Context, req *Request, resp *Response) error

	// Delete 删除单条缓存。
	Delete(ctx context.Context, req *Request) (bool, error)

	// Keys 返回当前代号中所有条目的 URL。
	Keys(ctx context.Context) ([]string, error)
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrNotCacheable 表示请求或响应不允许写入缓存。
	ErrNotCacheable = errors.New("request not cacheable")
	// ErrGenerationGone 表示写入时代号已被删除，条目被丢弃。
	ErrGenerationGone = errors.New("cache generation deleted")
)

// ResponseType 对应响应的投递类型，只有 basic 响应会被回写缓存。
type ResponseType string

const (
	TypeBasic          ResponseType = "basic"
	TypeCORS           ResponseType = "cors"
	TypeOpaque         ResponseType = "opaque"
	TypeOpaqueRedirect ResponseType = "opaqueredirect"
	TypeError          ResponseType = "error"
)

// Request 描述一次被拦截的请求，URL 为绝对地址。
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest 构造 GET 请求。
func NewRequest(rawURL string) *Request {
	return &Request{Method: http.MethodGet, URL: rawURL, Header: http.Header{}}
}

// Clone 复制请求，原请求与副本互不影响。
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Header = r.Header.Clone()
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return &clone
}

// Response 是完整读入内存的响应，Body 可被多次读取。
type Response struct {
	URL      string
	Status   int
	Header   http.Header
	Type     ResponseType
	Body     []byte
	StoredAt time.Time
}

// Clone 复制响应正文与头部。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Header = r.Header.Clone()
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return &clone
}

// OK 表示状态码处于 2xx。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// RequestKey 计算请求身份：方法 + 去掉 fragment 的 URL。只有 GET 请求有身份。
func RequestKey(req *Request) (string, error) {
	if req == nil {
		return "", fmt.Errorf("%w: nil request", ErrNotCacheable)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet {
		return "", fmt.Errorf("%w: method %s", ErrNotCacheable, method)
	}
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotCacheable, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrNotCacheable, parsed.Scheme)
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return method + " " + parsed.String(), nil
}

// checkStorable 校验响应可写入缓存：部分内容与 Vary: * 不允许缓存。
func checkStorable(resp *Response) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", ErrNotCacheable)
	}
	if resp.Status == http.StatusPartialContent {
		return fmt.Errorf("%w: partial content", ErrNotCacheable)
	}
	for _, v := range resp.Header.Values("Vary") {
		if strings.TrimSpace(v) == "*" {
			return fmt.Errorf("%w: vary *", ErrNotCacheable)
		}
	}
	return nil
}

// lookupFunc 在单个代号中按请求键查找，不存在时返回 ErrNotFound 且不创建代号。
type lookupFunc func(ctx context.Context, name, key string) (*Response, error)

// matchInOrder 依次在 names 对应的代号中查找请求，先命中者返回。
func matchInOrder(ctx context.Context, names []string, req *Request, lookup lookupFunc) (*Response, error) {
	key, err := RequestKey(req)
	if err != nil {
		return nil, ErrNotFound
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := lookup(ctx, name, key)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}
