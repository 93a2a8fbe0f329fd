package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	repo := NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	record, err := repo.CreateProcessing("key-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("CreateProcessing() error = %v", err)
	}
	if record.Status != domain.IdempotencyStatusProcessing {
		t.Errorf("Status = %q, want processing", record.Status)
	}

	if _, err := repo.CreateProcessing("key-1", "hash-1", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("duplicate CreateProcessing() error = %v, want ErrIdempotencyKeyAlreadyExists", err)
	}

	if err := repo.MarkDone("key-1", []byte(`{"success":true}`), 200); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}

	got, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.IdempotencyStatusDone {
		t.Errorf("Status = %q, want done", got.Status)
	}
	if got.HTTPStatus != 200 {
		t.Errorf("HTTPStatus = %d, want 200", got.HTTPStatus)
	}
	if string(got.ResponseBody) != `{"success":true}` {
		t.Errorf("ResponseBody = %s", got.ResponseBody)
	}
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	repo := NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("", "hash", ttl); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("empty key error = %v, want ErrIdempotencyKeyRequired", err)
	}
	if _, err := repo.CreateProcessing("key", "", ttl); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("empty hash error = %v, want ErrIdempotencyRequestHashRequired", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrIdempotencyKeyNotFound", err)
	}
	if err := repo.MarkFailed("missing", nil, 500); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("MarkFailed(missing) error = %v, want ErrIdempotencyKeyNotFound", err)
	}
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	repo := NewIdempotencyRepository()
	now := time.Now().UTC()

	if _, err := repo.CreateProcessing("old-1", "h", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("CreateProcessing() error = %v", err)
	}
	if _, err := repo.CreateProcessing("old-2", "h", now.Add(-time.Hour)); err != nil {
		t.Fatalf("CreateProcessing() error = %v", err)
	}
	if _, err := repo.CreateProcessing("live", "h", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing() error = %v", err)
	}

	deleted, err := repo.DeleteExpired(now, 10)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if _, err := repo.Get("live"); err != nil {
		t.Errorf("live record must survive, got error %v", err)
	}
}
