package registry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/linestore/internal/errors"
	"github.com/xtxerr/linestore/internal/storage"
	testutil "github.com/xtxerr/linestore/internal/testing"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(t.TempDir(), storage.Options{
		Now: func() time.Time { return time.Unix(1703936000, 0) },
	})
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistry_OpenAndGet(t *testing.T) {
	r := newRegistry(t)

	if _, ok := r.Get("cpu"); ok {
		t.Error("series should not be open yet")
	}

	s, err := r.Open("cpu", 13)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, ok := r.Get("cpu")
	if !ok || got != s {
		t.Error("Get should return the opened series")
	}

	again, err := r.Open("cpu", 13)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if again != s {
		t.Error("second Open should return the same series")
	}

	if st := r.Stats(); st.Opens != 1 || st.Hits != 1 || st.Open != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRegistry_WidthMismatch(t *testing.T) {
	r := newRegistry(t)

	if _, err := r.Open("cpu", 13); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Open("cpu", 8); !errors.Is(err, errors.ErrSizeMismatch) {
		t.Errorf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestRegistry_InvalidName(t *testing.T) {
	r := newRegistry(t)

	for _, name := range []string{"", "a/b", "../x"} {
		if _, err := r.Open(name, 4); !errors.Is(err, errors.ErrInvalidConfig) {
			t.Errorf("Open(%q): expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestRegistry_Names(t *testing.T) {
	r := newRegistry(t)

	for _, name := range []string{"mem", "cpu", "disk"} {
		if _, err := r.Open(name, 4); err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"cpu", "disk", "mem"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
			break
		}
	}
}

func TestRegistry_ConcurrentOpen(t *testing.T) {
	r := newRegistry(t)

	const goroutines = 16
	var first atomic.Pointer[storage.Series]

	h := testutil.NewTestHelper(t)
	for i := 0; i < goroutines; i++ {
		h.Add(1)
		go func(id int) {
			defer h.Done()
			s, err := r.Open("shared", 8)
			if err != nil {
				h.Errorf("goroutine %d: %v", id, err)
				return
			}
			first.CompareAndSwap(nil, s)
			if first.Load() != s {
				h.Errorf("goroutine %d: got a different series", id)
			}
		}(i)
	}
	h.Wait()

	if st := r.Stats(); st.Opens != 1 {
		t.Errorf("expected a single open, got %d", st.Opens)
	}
}

func TestRegistry_Close(t *testing.T) {
	r := newRegistry(t)

	s, err := r.Open("cpu", 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.AppendUnix(1, []byte{1, 2, 3, 4}); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("series should be closed, got %v", err)
	}
	if _, err := r.Open("cpu", 4); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if len(r.Names()) != 0 {
		t.Error("expected no open series after close")
	}
}
