package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubNotifier struct {
	id    string
	err   error
	calls int
}

func (s *stubNotifier) ID() string   { return s.id }
func (s *stubNotifier) Type() string { return "stub" }

func (s *stubNotifier) Notify(context.Context, Event) error {
	s.calls++
	return s.err
}

func TestFanoutNotifiesAll(t *testing.T) {
	a := &stubNotifier{id: "a"}
	b := &stubNotifier{id: "b"}
	f := NewFanout([]Notifier{a, nil, b})

	if f.Size() != 2 {
		t.Fatalf("nil notifier should be dropped, size=%d", f.Size())
	}

	n, err := f.Notify(context.Background(), NewEvent(KindDiscover))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if n != 2 || a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected both notifiers called once, n=%d a=%d b=%d", n, a.calls, b.calls)
	}
}

func TestFanoutCollectsFailures(t *testing.T) {
	ok := &stubNotifier{id: "ok"}
	bad := &stubNotifier{id: "bad", err: errors.New("boom")}
	f := NewFanout([]Notifier{ok, bad})

	n, err := f.Notify(context.Background(), NewEvent(KindPublishFailed))
	if n != 1 {
		t.Fatalf("expected 1 success, got %d", n)
	}
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected joined error naming the failing notifier, got %v", err)
	}
	if ok.calls != 1 {
		t.Fatalf("healthy notifier should still run, calls=%d", ok.calls)
	}
}

func TestFanoutEmpty(t *testing.T) {
	f := NewFanout(nil)
	n, err := f.Notify(context.Background(), NewEvent(KindPublish))
	if n != 0 || err != nil {
		t.Fatalf("empty fanout should no-op, n=%d err=%v", n, err)
	}
}
