package gateway

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/wardenmcp/warden/internal/model"
)

func TestRegistryConnectAndGet(t *testing.T) {
	r := NewRegistry()

	r.RegisterKind("static", func(cfg model.BackendConfig) (Backend, error) {
		return NewStaticBackend(cfg.Name), nil
	})

	if _, err := r.Connect(model.BackendConfig{Name: "gh", Kind: "static"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	b, err := r.Get("gh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b.Name() != "gh" {
		t.Errorf("Name = %q", b.Name())
	}

	if _, err := r.Get("missing"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Get missing: got %v, want ErrUnknownBackend", err)
	}
}

func TestRegistryUnsupportedKind(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Connect(model.BackendConfig{Name: "x", Kind: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unsupported kind")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStaticBackend("zeta"))
	r.Register(NewStaticBackend("alpha"))
	r.Register(NewStaticBackend("mid"))

	want := []string{"alpha", "mid", "zeta"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

func TestRegistryDisconnect(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStaticBackend("gh"))

	if err := r.Disconnect("gh"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := r.Get("gh"); !errors.Is(err, ErrUnknownBackend) {
		t.Error("backend still registered after Disconnect")
	}
	if err := r.Disconnect("gh"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("second Disconnect: got %v, want ErrUnknownBackend", err)
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	r.Register(NewStaticBackend("a"))
	r.Register(NewStaticBackend("b"))

	if err := r.CloseAll(); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if got := r.Names(); len(got) != 0 {
		t.Errorf("Names after CloseAll = %v", got)
	}
}

func TestStaticBackendUnknownMethod(t *testing.T) {
	b := NewStaticBackend("gh")

	_, err := b.Dispatch(context.Background(), "nope", nil)
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("got %v, want BackendError", err)
	}
	if be.Backend != "gh" {
		t.Errorf("Backend = %q", be.Backend)
	}
}
