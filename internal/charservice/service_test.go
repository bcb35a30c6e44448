package charservice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/charforge/internal/apperr"
	"github.com/starford/charforge/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishCharacterEvent(kind, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, kind+":"+id)
}

func newService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewService(testutil.TestDB(t), pub, nil), pub
}

func TestSaveCreateWithIfNoneMatch(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()

	saved, err := svc.Save(ctx, testutil.Sheet("a", "Nyx"), Precondition{IfNoneMatch: true}, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Name != "Nyx" {
		t.Errorf("name = %q, want Nyx", saved.Name)
	}

	_, err = svc.Save(ctx, testutil.Sheet("a", "Again"), Precondition{IfNoneMatch: true}, false)
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if ce.Current == nil || ce.Current.Name != "Nyx" {
		t.Errorf("conflict current = %+v, want stored record", ce.Current)
	}
	if !errors.Is(err, apperr.ErrConflict) {
		t.Error("ConflictError should match ErrConflict")
	}
	if len(pub.events) != 1 || pub.events[0] != "saved:a" {
		t.Errorf("events = %v, want [saved:a]", pub.events)
	}
}

func TestSaveIfMatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first := testutil.Sheet("a", "v1")
	if _, err := svc.Save(ctx, first, Precondition{}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := testutil.Sheet("a", "v2")
	second.UpdatedAt = first.UpdatedAt.Add(time.Second)
	if _, err := svc.Save(ctx, second, Precondition{IfMatch: first.UpdatedAt}, false); err != nil {
		t.Fatalf("Save with matching baseline: %v", err)
	}

	stale := testutil.Sheet("a", "v3")
	stale.UpdatedAt = second.UpdatedAt.Add(time.Second)
	_, err := svc.Save(ctx, stale, Precondition{IfMatch: first.UpdatedAt}, false)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	if _, err := svc.Save(ctx, stale, Precondition{IfMatch: first.UpdatedAt}, true); err != nil {
		t.Fatalf("forced save: %v", err)
	}
	got, _ := svc.Get(ctx, "a")
	if got.Name != "v3" {
		t.Errorf("name = %q, want v3", got.Name)
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first := testutil.Sheet("a", "Nyx")
	_, _ = svc.Save(ctx, first, Precondition{}, false)

	next := testutil.Sheet("a", "Nyx")
	next.CreatedAt = first.CreatedAt.Add(time.Hour)
	next.UpdatedAt = first.UpdatedAt.Add(time.Hour)
	saved, err := svc.Save(ctx, next, Precondition{}, false)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !saved.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", saved.CreatedAt, first.CreatedAt)
	}
}

func TestSaveValidation(t *testing.T) {
	svc, pub := newService(t)
	bad := testutil.Sheet("a", "")
	bad.Level = 99

	_, err := svc.Save(context.Background(), bad, Precondition{}, false)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(ve.Problems) != 2 {
		t.Errorf("problems = %v, want 2 entries", ve.Problems)
	}
	if len(pub.events) != 0 {
		t.Errorf("events = %v, want none", pub.events)
	}
}

func TestDeleteAndPurge(t *testing.T) {
	svc, pub := newService(t)
	ctx := context.Background()
	_, _ = svc.Save(ctx, testutil.Sheet("a", "A"), Precondition{}, false)
	_, _ = svc.Save(ctx, testutil.Sheet("b", "B"), Precondition{}, false)
	_, _ = svc.Save(ctx, testutil.Sheet("c", "C"), Precondition{}, false)

	if err := svc.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}

	list, _ := svc.AdminList(ctx)
	if len(list) != 2 {
		t.Errorf("admin list = %d, want 2", len(list))
	}

	n, err := svc.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}
	list, _ = svc.List(ctx)
	if len(list) != 0 {
		t.Errorf("list after purge = %d, want 0", len(list))
	}
	last := pub.events[len(pub.events)-1]
	if last != "purged:" {
		t.Errorf("last event = %q, want purged:", last)
	}
}

func TestPreconditionHolds(t *testing.T) {
	cur := testutil.Sheet("a", "A")
	tests := []struct {
		name string
		pre  Precondition
		cur  bool
		want bool
	}{
		{"none, absent", Precondition{}, false, true},
		{"none, present", Precondition{}, true, true},
		{"if-none-match, absent", Precondition{IfNoneMatch: true}, false, true},
		{"if-none-match, present", Precondition{IfNoneMatch: true}, true, false},
		{"if-match equal", Precondition{IfMatch: cur.UpdatedAt}, true, true},
		{"if-match stale", Precondition{IfMatch: cur.UpdatedAt.Add(-time.Second)}, true, false},
		{"if-match, absent", Precondition{IfMatch: cur.UpdatedAt}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cur
			if !tt.cur {
				c = nil
			}
			if got := tt.pre.Holds(c); got != tt.want {
				t.Errorf("Holds() = %v, want %v", got, tt.want)
			}
		})
	}
}
