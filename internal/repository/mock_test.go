package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

func TestMockInsertMitigationRejectsScopeConflict(t *testing.T) {
	repo := NewMock()
	ctx := context.Background()
	now := time.Now().UTC()

	m := domain.Mitigation{
		MitigationID: "m1",
		ScopeHash:    "abc",
		POP:          "iad1",
		Status:       domain.StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Minute),
	}
	if err := repo.InsertMitigation(ctx, m); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := m
	dup.MitigationID = "m2"
	if err := repo.InsertMitigation(ctx, dup); err != ErrScopeConflict {
		t.Fatalf("second insert err = %v, want ErrScopeConflict", err)
	}
}

func TestMockFindExpiredMitigations(t *testing.T) {
	repo := NewMock()
	ctx := context.Background()
	now := time.Now().UTC()

	expired := domain.Mitigation{MitigationID: "m1", ScopeHash: "a", POP: "iad1", Status: domain.StatusActive, CreatedAt: now, ExpiresAt: now.Add(-time.Second)}
	live := domain.Mitigation{MitigationID: "m2", ScopeHash: "b", POP: "iad1", Status: domain.StatusActive, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	if err := repo.InsertMitigation(ctx, expired); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertMitigation(ctx, live); err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindExpiredMitigations(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MitigationID != "m1" {
		t.Fatalf("FindExpiredMitigations() = %+v, want only m1", got)
	}
}

func TestMockIsSafelisted(t *testing.T) {
	repo := NewMock()
	ctx := context.Background()

	if err := repo.InsertSafelist(ctx, "203.0.113.0/24", "operator1", nil); err != nil {
		t.Fatal(err)
	}

	ok, err := repo.IsSafelisted(ctx, "203.0.113.10")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("IsSafelisted(203.0.113.10) = false, want true")
	}

	ok, err = repo.IsSafelisted(ctx, "198.51.100.1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("IsSafelisted(198.51.100.1) = true, want false")
	}
}

func TestMockCreateOperatorRejectsDuplicateUsername(t *testing.T) {
	repo := NewMock()
	ctx := context.Background()

	if _, err := repo.CreateOperator(ctx, "alice", "hash1", domain.RoleOperator, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateOperator(ctx, "alice", "hash2", domain.RoleAdmin, nil); err != ErrScopeConflict {
		t.Fatalf("duplicate create err = %v, want ErrScopeConflict", err)
	}
}
