package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/oct1/countdown-agent/internal/agent"
	"github.com/oct1/countdown-agent/internal/cache"
	"github.com/oct1/countdown-agent/internal/notify"
)

const testOrigin = "http://countdown.local"

// staticFetcher 为每个 URL 返回同源 200 响应。
type staticFetcher struct{}

func (staticFetcher) Fetch(_ context.Context, req *cache.Request) (*cache.Response, error) {
	return &cache.Response{
		URL:    req.URL,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Type:   cache.TypeBasic,
		Body:   []byte("page " + req.URL),
	}, nil
}

type routeEnv struct {
	app     *fiber.App
	agent   *agent.Agent
	center  *notify.Center
	storage cache.Storage
}

func newRouteEnv(t *testing.T) *routeEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	storage, err := cache.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("storage error: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	center := notify.NewCenter(logger)
	a, err := agent.New(agent.Options{
		CacheName:  "oct-1-countdown-v1",
		Origin:     testOrigin,
		SeedAssets: []string{"/", "/index.html", "/manifest.json"},
		SyncTag:    "countdown-sync",
		Storage:    storage,
		Fetcher:    staticFetcher{},
		Notifier:   center,
		Windows:    center,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("agent error: %v", err)
	}

	app := fiber.New()
	RegisterLifecycleRoutes(app, a, center)
	return &routeEnv{app: app, agent: a, center: center, storage: storage}
}

func (e *routeEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, payload
}

func TestInstallAndCachesRoutes(t *testing.T) {
	env := newRouteEnv(t)

	resp, body := env.do(t, http.MethodPost, "/-/install", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var install installPayload
	if err := json.Unmarshal(body, &install); err != nil {
		t.Fatalf("decode install: %v", err)
	}
	if install.Generation != "oct-1-countdown-v1" || install.Error != "" {
		t.Fatalf("unexpected install payload: %+v", install)
	}

	resp, body = env.do(t, http.MethodGet, "/-/caches", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var caches struct {
		Current string         `json:"current"`
		Caches  []cachePayload `json:"caches"`
	}
	if err := json.Unmarshal(body, &caches); err != nil {
		t.Fatalf("decode caches: %v", err)
	}
	if caches.Current != "oct-1-countdown-v1" {
		t.Fatalf("unexpected current generation: %s", caches.Current)
	}
	if len(caches.Caches) != 1 || caches.Caches[0].Entries != 3 {
		t.Fatalf("expected one generation with three entries, got %+v", caches.Caches)
	}
}

func TestActivateRouteDeletesStaleGenerations(t *testing.T) {
	env := newRouteEnv(t)
	ctx := context.Background()
	for _, name := range []string{"oct-1-countdown-v0", "oct-1-countdown-v1"} {
		if _, err := env.storage.Open(ctx, name); err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
	}

	resp, body := env.do(t, http.MethodPost, "/-/activate", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report activatePayload
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode activate: %v", err)
	}
	if len(report.Deleted) != 1 || report.Deleted[0] != "oct-1-countdown-v0" {
		t.Fatalf("unexpected deleted list: %+v", report.Deleted)
	}
	names, err := env.storage.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(names) != 1 || names[0] != "oct-1-countdown-v1" {
		t.Fatalf("expected only current generation, got %v", names)
	}
}

func TestSyncRoute(t *testing.T) {
	env := newRouteEnv(t)

	_, body := env.do(t, http.MethodPost, "/-/sync", `{"tag":"countdown-sync"}`)
	var result agent.SyncResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if !result.Handled {
		t.Fatalf("expected countdown-sync to be handled")
	}

	_, body = env.do(t, http.MethodPost, "/-/sync", `{"tag":"other"}`)
	result = agent.SyncResult{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if result.Handled {
		t.Fatalf("expected other tag to be ignored")
	}

	resp, _ := env.do(t, http.MethodPost, "/-/sync", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing body, got %d", resp.StatusCode)
	}
}

func TestPushRoute(t *testing.T) {
	env := newRouteEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/-/push", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 for empty push, got %d", resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodPost, "/-/push", "{not json")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for invalid payload, got %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("invalid_payload")) {
		t.Fatalf("expected invalid_payload error, got %s", body)
	}

	resp, body = env.do(t, http.MethodPost, "/-/push", `{"title":"T-minus 1","url":"/x"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var n agent.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Title != "T-minus 1" || n.Options.Body != agent.DefaultNotificationBody {
		t.Fatalf("unexpected notification: %+v", n)
	}

	_, body = env.do(t, http.MethodGet, "/-/notifications", "")
	var list struct {
		Notifications []agent.Notification `json:"notifications"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(list.Notifications) != 1 || list.Notifications[0].ID != n.ID {
		t.Fatalf("expected the shown notification to be listed, got %+v", list.Notifications)
	}
}

func TestNotificationClickRoute(t *testing.T) {
	env := newRouteEnv(t)

	n, err := env.agent.Push(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/-/notifications/"+n.ID+"/click", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var win agent.Window
	if err := json.Unmarshal(body, &win); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if win.URL != "/" {
		t.Fatalf("expected window at /, got %s", win.URL)
	}
	if len(env.center.Notifications()) != 0 {
		t.Fatalf("expected clicked notification to be closed")
	}

	_, body = env.do(t, http.MethodGet, "/-/windows", "")
	if !bytes.Contains(body, []byte(`"url":"/"`)) {
		t.Fatalf("expected window list to contain /, got %s", body)
	}

	resp, _ = env.do(t, http.MethodPost, "/-/notifications/"+n.ID+"/click", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for closed notification, got %d", resp.StatusCode)
	}
}
