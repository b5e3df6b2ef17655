package completion

import (
	"context"
	"testing"

	config "buddy/app/configs"
)

func TestCompleteRequiresInitialize(t *testing.T) {
	svc := NewLocalService(config.ModelConfig{
		BaseURL:         "http://127.0.0.1:9",
		Name:            "test-model",
		CompleteTimeout: 1,
	})

	if svc.IsInitialized() {
		t.Fatal("new service should not be initialized")
	}
	if svc.IsLoading() {
		t.Fatal("new service should not be loading")
	}
	if _, err := svc.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected error before Initialize")
	}
}

func TestReleaseClearsInitialized(t *testing.T) {
	svc := NewLocalService(config.ModelConfig{BaseURL: "http://127.0.0.1:9", Name: "test-model"})
	svc.mu.Lock()
	svc.initialized = true
	svc.mu.Unlock()

	svc.Release()
	if svc.IsInitialized() {
		t.Fatal("Release should clear the initialized flag")
	}
}
