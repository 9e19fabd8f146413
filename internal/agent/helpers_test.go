package agent

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/oct1/countdown-agent/internal/cache"
)

const testOrigin = "http://countdown.local"

// fakeNetwork 以 URL 为键返回预设响应，并记录每次调用。
type fakeNetwork struct {
	mu        sync.Mutex
	responses map[string]*cache.Response
	failures  map[string]error
	calls     []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		responses: map[string]*cache.Response{},
		failures:  map[string]error{},
	}
}

func (n *fakeNetwork) serve(url string, status int, typ cache.ResponseType, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[url] = &cache.Response{
		URL:    url,
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Type:   typ,
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) fail(url string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[url] = err
}

func (n *fakeNetwork) Fetch(_ context.Context, req *cache.Request) (*cache.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req.URL)
	if err := n.failures[req.URL]; err != nil {
		return nil, err
	}
	resp, ok := n.responses[req.URL]
	if !ok {
		return &cache.Response{URL: req.URL, Status: http.StatusNotFound, Header: http.Header{}, Type: cache.TypeBasic}, nil
	}
	return resp.Clone(), nil
}

func (n *fakeNetwork) callCount(url string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if c == url {
			count++
		}
	}
	return count
}

type fakeHost struct {
	mu      sync.Mutex
	shown   []Notification
	closed  []string
	opened  []string
	showErr error
}

func (h *fakeHost) ShowNotification(_ context.Context, title string, opts NotificationOptions) (*Notification, error) {
	if h.showErr != nil {
		return nil, h.showErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := Notification{ID: "n-" + title, Title: title, Options: opts}
	h.shown = append(h.shown, n)
	return &n, nil
}

func (h *fakeHost) Close(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, n := range h.shown {
		if n.ID == id {
			h.closed = append(h.closed, id)
			return nil
		}
	}
	return ErrNotificationNotFound
}

func (h *fakeHost) OpenWindow(_ context.Context, url string) (*Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.closed) == 0 {
		return nil, errors.New("window opened before notification closed")
	}
	h.opened = append(h.opened, url)
	return &Window{ID: "w-1", URL: url, Focused: true}, nil
}

type testEnv struct {
	agent   *Agent
	storage cache.Storage
	network *fakeNetwork
	host    *fakeHost
	logs    *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	storage, err := cache.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage error: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	logs := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	network := newFakeNetwork()
	host := &fakeHost{}
	a, err := New(Options{
		CacheName:  "oct-1-countdown-v1",
		Origin:     testOrigin,
		SeedAssets: []string{"/", "/index.html", "/manifest.json"},
		SyncTag:    "countdown-sync",
		Storage:    storage,
		Fetcher:    network,
		Notifier:   host,
		Windows:    host,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("agent error: %v", err)
	}
	t.Cleanup(func() { _ = a.Drain(context.Background()) })

	return &testEnv{agent: a, storage: storage, network: network, host: host, logs: logs}
}

func (e *testEnv) serveSeed() {
	for _, path := range []string{"/", "/index.html", "/manifest.json"} {
		e.network.serve(testOrigin+path, http.StatusOK, cache.TypeBasic, "asset:"+path)
	}
}

func (e *testEnv) openGeneration(t *testing.T, name string) cache.Store {
	t.Helper()
	store, err := e.storage.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return store
}
