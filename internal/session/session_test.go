package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreate_GeneratesUUID(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("expected UUID, got %q", id)
	}

	other, _ := s.Create(ctx)
	if other == id {
		t.Error("expected distinct session IDs")
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	if err := s.Ensure(ctx, "client-chosen-id"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := s.SetCurrentFile(ctx, "client-chosen-id", "report.pdf"); err != nil {
		t.Fatalf("SetCurrentFile: %v", err)
	}
	if err := s.Ensure(ctx, "client-chosen-id"); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}

	// Re-ensuring must not reset session state.
	got, err := s.CurrentFile(ctx, "client-chosen-id")
	if err != nil {
		t.Fatalf("CurrentFile: %v", err)
	}
	if got != "report.pdf" {
		t.Errorf("expected current file preserved, got %q", got)
	}
}

func TestCurrentFile_Lifecycle(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx)
	got, err := s.CurrentFile(ctx, id)
	if err != nil {
		t.Fatalf("CurrentFile: %v", err)
	}
	if got != "" {
		t.Errorf("new session should have no current file, got %q", got)
	}

	if err := s.SetCurrentFile(ctx, id, "slides.pdf"); err != nil {
		t.Fatalf("SetCurrentFile: %v", err)
	}
	got, _ = s.CurrentFile(ctx, id)
	if got != "slides.pdf" {
		t.Errorf("expected slides.pdf, got %q", got)
	}
}

func TestCurrentFile_UnknownSession(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	if _, err := s.CurrentFile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetCurrentFile(context.Background(), "missing", "x.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendExchange_RecentOrder(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx)
	if err := s.AppendExchange(ctx, id, "what is the total?", "The total is 42."); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	msgs, err := s.Recent(ctx, id)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].Content != "what is the total?" {
		t.Errorf("unexpected question %q", msgs[0].Content)
	}
}

func TestAppendExchange_PrunesOldHistory(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx)
	for i := 0; i < MaxExchanges+3; i++ {
		q := fmt.Sprintf("question %d", i)
		a := fmt.Sprintf("answer %d", i)
		if err := s.AppendExchange(ctx, id, q, a); err != nil {
			t.Fatalf("AppendExchange %d: %v", i, err)
		}
	}

	msgs, err := s.Recent(ctx, id)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != MaxExchanges*2 {
		t.Fatalf("expected %d retained messages, got %d", MaxExchanges*2, len(msgs))
	}
	// The oldest retained message should be from exchange 3, not exchange 0.
	if msgs[0].Content != "question 3" {
		t.Errorf("expected oldest retained to be question 3, got %q", msgs[0].Content)
	}
	if msgs[len(msgs)-1].Content != fmt.Sprintf("answer %d", MaxExchanges+2) {
		t.Errorf("unexpected newest message %q", msgs[len(msgs)-1].Content)
	}
}

func TestAppendExchange_UnknownSession(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	if err := s.AppendExchange(context.Background(), "missing", "q", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_UnknownSession(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_RemovesMessages(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	id, _ := s.Create(ctx)
	s.AppendExchange(ctx, id, "q", "a")

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.CurrentFile(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	msgs, err := s.Recent(ctx, id)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after delete, got %d", len(msgs))
	}
}
