package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/persistence/middleware"
	"github.com/aretw0/conduit/pkg/ports"
)

func TestRedactionMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := middleware.NewRedactionMiddleware([]string{"password", "token"})(underlyingStore)

	ctx := context.Background()
	snap := &domain.GraphSnapshot{
		GraphID: "g",
		Spec: domain.GraphSpec{ID: "g", Nodes: []domain.NodeSpec{{
			ID:   "client",
			Type: "http",
			Params: map[string]any{
				"user":          "jdoe",
				"user_password": "secret123",
				"auth":          map[string]any{"api_token": "abc", "scheme": "bearer"},
			},
		}}},
		State: domain.GraphDescription{ID: "g", Nodes: []domain.NodeDescription{{
			ID:     "client",
			Params: map[string]any{"user_password": "secret123"},
		}}},
	}

	if err := secureStore.Save(ctx, "g", snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if snap.Spec.Nodes[0].Params["user_password"] != "secret123" {
		t.Error("Middleware modified the caller's snapshot")
	}

	stored, err := underlyingStore.Load(ctx, "g")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	params := stored.Spec.Nodes[0].Params
	if params["user"] != "jdoe" {
		t.Error("user shouldn't be masked")
	}
	if params["user_password"] != middleware.Mask {
		t.Errorf("password should be masked, got: %v", params["user_password"])
	}
	auth := params["auth"].(map[string]any)
	if auth["api_token"] != middleware.Mask || auth["scheme"] != "bearer" {
		t.Errorf("nested token should be masked, got: %v", auth)
	}
	if stored.State.Nodes[0].Params["user_password"] != middleware.Mask {
		t.Error("live parameters should be masked too")
	}
}

func TestChain_Contract(t *testing.T) {
	store := middleware.Chain(memory.NewStore(),
		middleware.NewRedactionMiddleware([]string{"secret"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}),
	)
	ports.RunSnapshotStoreContract(t, store)
}
