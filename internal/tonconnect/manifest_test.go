package tonconnect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGetter struct {
	calls    atomic.Int32
	manifest Manifest
	err      error
}

func (g *fakeGetter) Get(_ context.Context, _ string, out interface{}) error {
	g.calls.Add(1)
	if g.err != nil {
		return g.err
	}
	*out.(*Manifest) = g.manifest
	return nil
}

func testManifest() Manifest {
	return Manifest{URL: "https://app.example", Name: "Example", IconURL: "https://app.example/icon.png"}
}

func TestManifests_CacheHit(t *testing.T) {
	g := &fakeGetter{manifest: testManifest()}
	m := NewManifests(g, 4, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := m.Get(context.Background(), "https://app.example/manifest.json")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "Example" {
			t.Errorf("name = %q", got.Name)
		}
	}
	if n := g.calls.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("cached = %d, want 1", m.Len())
	}
}

func TestManifests_Expiry(t *testing.T) {
	g := &fakeGetter{manifest: testManifest()}
	m := NewManifests(g, 4, 20*time.Millisecond)
	if _, err := m.Get(context.Background(), "u"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := m.Get(context.Background(), "u"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := g.calls.Load(); n != 2 {
		t.Errorf("fetches = %d, want 2 after expiry", n)
	}
}

func TestManifests_Errors(t *testing.T) {
	g := &fakeGetter{err: errors.New("offline")}
	m := NewManifests(g, 4, time.Minute)
	if _, err := m.Get(context.Background(), "u"); err == nil {
		t.Fatal("expected fetch error")
	}
	if m.Len() != 0 {
		t.Error("failed fetch was cached")
	}

	g.err = nil
	g.manifest = Manifest{IconURL: "x"}
	if _, err := m.Get(context.Background(), "u"); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestManifest_Host(t *testing.T) {
	if h := testManifest().Host(); h != "app.example" {
		t.Errorf("Host() = %q", h)
	}
}
