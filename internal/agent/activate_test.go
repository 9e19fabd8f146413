package agent

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/oct1/countdown-agent/internal/cache"
)

func TestActivateKeepsOnlyCurrentGeneration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"oct-1-countdown-v0", "legacy-assets", "oct-1-countdown-v1"} {
		env.openGeneration(t, name)
	}

	report := env.agent.Activate(ctx)
	if err := report.Err(); err != nil {
		t.Fatalf("activate error: %v", err)
	}
	if !reflect.DeepEqual(report.Deleted, []string{"legacy-assets", "oct-1-countdown-v0"}) {
		t.Fatalf("unexpected deleted list: %v", report.Deleted)
	}

	names, err := env.storage.Keys(ctx)
	if err != nil {
		t.Fatalf("keys error: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"oct-1-countdown-v1"}) {
		t.Fatalf("expected only the current generation, got %v", names)
	}
}

type failingDeleteStorage struct {
	cache.Storage
	failOn string
}

func (s failingDeleteStorage) Delete(ctx context.Context, name string) (bool, error) {
	if name == s.failOn {
		return false, errors.New("disk busy")
	}
	return s.Storage.Delete(ctx, name)
}

func TestActivateRecordsDeletionFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.openGeneration(t, "stuck")
	env.openGeneration(t, "old")

	env.agent.storage = failingDeleteStorage{Storage: env.storage, failOn: "stuck"}
	report := env.agent.Activate(ctx)

	if _, ok := report.Failed["stuck"]; !ok {
		t.Fatalf("expected stuck deletion to be recorded, got %v", report.Failed)
	}
	if !reflect.DeepEqual(report.Deleted, []string{"old"}) {
		t.Fatalf("other deletions must still run, got %v", report.Deleted)
	}
	if report.Err() == nil {
		t.Fatalf("report should surface the failure")
	}
}
