package postgres

import (
	"context"
	"errors"
	"testing"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/model"
)

func TestGetExecutor_RejectsUnknownHandles(t *testing.T) {
	if _, err := getExecutor(nil, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("nil pool and nil tx: got %v", err)
	}
	if _, err := getExecutor(nil, "not a tx"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Fatalf("foreign handle: got %v", err)
	}
}

func TestJobRepo_SaveValidates(t *testing.T) {
	repo := NewJobRepo(nil)
	err := repo.Save(context.Background(), nil, &model.Job{ID: "x"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
