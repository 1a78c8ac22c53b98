package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"offlineproxy/internal/domain"
)

func TestContainerRegister(t *testing.T) {
	env := newTestEnv(t)
	c := NewContainer(env.deps)
	ctx := context.Background()

	if c.Active() != nil {
		t.Fatal("Active() != nil before register")
	}

	v1, err := c.Register(ctx, testManifest("v1"))
	if err != nil {
		t.Fatalf("Register(v1) error = %v", err)
	}
	if c.Active() != v1 {
		t.Error("Active() is not the v1 worker")
	}

	// 同じマニフェストでは新しいワーカーを作らない
	same, err := c.Register(ctx, testManifest("v1"))
	if err != nil {
		t.Fatalf("Register(v1 again) error = %v", err)
	}
	if same != v1 {
		t.Error("Register() with unchanged manifest replaced the worker")
	}

	runtime, _ := env.storage.Open(ctx, "ball-maze-music-v1")
	runtime.Put(ctx, domain.GetKey(testScope+"music/a.mp3"), &domain.StoredResponse{Status: 200})

	v2, err := c.Register(ctx, testManifest("v2"))
	if err != nil {
		t.Fatalf("Register(v2) error = %v", err)
	}
	if c.Active() != v2 {
		t.Error("Active() is not the v2 worker")
	}
	if got := v1.State(); got != StateRedundant {
		t.Errorf("v1 State() = %s, want %s", got, StateRedundant)
	}
	if v1.Claimed() {
		t.Error("v1 still claimed after update")
	}

	names, _ := env.storage.Keys(ctx)
	want := []string{"ball-maze-v2"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("caches = %v, want %v", names, want)
	}
}

func TestContainerFailedUpdateKeepsPreviousWorker(t *testing.T) {
	env := newTestEnv(t)
	c := NewContainer(env.deps)
	ctx := context.Background()

	v1, err := c.Register(ctx, testManifest("v1"))
	if err != nil {
		t.Fatalf("Register(v1) error = %v", err)
	}

	broken := testManifest("v2")
	broken.CoreAssets = append(broken.CoreAssets, "./missing.png")

	_, err = c.Register(ctx, broken)
	var installErr *domain.ErrInstallFailed
	if !errors.As(err, &installErr) {
		t.Fatalf("Register(v2) error = %v, want ErrInstallFailed", err)
	}

	if c.Active() != v1 {
		t.Error("failed update replaced the active worker")
	}
	if got := v1.State(); got != StateActivated {
		t.Errorf("v1 State() = %s, want %s", got, StateActivated)
	}
	if keys := cacheKeys(t, env.storage, "ball-maze-v1"); len(keys) != 2 {
		t.Errorf("v1 core cache entries = %d, want 2", len(keys))
	}
}

func TestContainerRegisterInvalidManifest(t *testing.T) {
	env := newTestEnv(t)
	c := NewContainer(env.deps)

	m := testManifest("")
	if _, err := c.Register(context.Background(), m); err == nil {
		t.Error("Register() error = nil, want error")
	}
	if c.Active() != nil {
		t.Error("invalid manifest produced an active worker")
	}
}
