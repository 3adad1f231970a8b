package socket

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
)

type stubTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closes int
	failW  error
}

func (s *stubTransport) ReadFrame() ([]byte, error) { select {} }

func (s *stubTransport) WriteFrame(f []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failW != nil {
		return s.failW
	}
	s.frames = append(s.frames, append([]byte(nil), f...))
	return nil
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) RemoteAddr() string { return "stub" }

func (s *stubTransport) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = string(f)
	}
	return out
}

func ids(conns []*Connection) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	sort.Strings(out)
	return out
}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry(0)
	c := NewConnection("a", &stubTransport{})
	if err := r.Register("a", c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Lookup("a")
	if err != nil || got != c {
		t.Fatalf("Lookup(a) = %v, %v", got, err)
	}
	if _, err := r.Lookup("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(b) err = %v, want ErrNotFound", err)
	}
}

func TestRegistryRejectsReusedIdentity(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Register("a", NewConnection("a", &stubTransport{}))

	if err := r.Register("a", NewConnection("a", &stubTransport{})); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("second Register err = %v, want ErrDuplicateIdentity", err)
	}

	r.Deactivate("a")
	r.Remove("a")
	if err := r.Register("a", NewConnection("a", &stubTransport{})); !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("Register after Remove err = %v, want ErrDuplicateIdentity", err)
	}
}

func TestRegistryDeactivateIdempotent(t *testing.T) {
	r := NewRegistry(0)
	c := NewConnection("a", &stubTransport{})
	_ = r.Register("a", c)

	if !r.Deactivate("a") {
		t.Error("first Deactivate should report the transition")
	}
	if r.Deactivate("a") {
		t.Error("second Deactivate should be a no-op")
	}
	if c.Active() {
		t.Error("connection still active")
	}
	if r.Deactivate("missing") {
		t.Error("Deactivate of unknown identity should report false")
	}
}

func TestRegistryActiveSnapshot(t *testing.T) {
	r := NewRegistry(0)
	for _, id := range []string{"a", "b", "c", "d"} {
		_ = r.Register(id, NewConnection(id, &stubTransport{}))
	}
	r.Deactivate("b")
	r.Deactivate("d")
	r.Remove("d")

	if got := ids(r.Active("")); fmt.Sprint(got) != "[a c]" {
		t.Errorf("Active() = %v, want [a c]", got)
	}
	if got := ids(r.Active("a")); fmt.Sprint(got) != "[c]" {
		t.Errorf("Active(a) = %v, want [c]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}

	snap := r.Active("")
	_ = r.Register("e", NewConnection("e", &stubTransport{}))
	if len(snap) != 2 {
		t.Error("snapshot changed after a later Register")
	}
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry(0)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(2)
		id := fmt.Sprintf("c%03d", i)
		go func() {
			defer wg.Done()
			_ = r.Register(id, NewConnection(id, &stubTransport{}))
			if i%2 == 1 {
				r.Deactivate(id)
				r.Remove(id)
			}
		}()
		go func() {
			defer wg.Done()
			for _, c := range r.Active("") {
				_ = c.ID()
			}
		}()
	}
	wg.Wait()

	got := ids(r.Active(""))
	if len(got) != n/2 {
		t.Fatalf("Active() has %d entries, want %d", len(got), n/2)
	}
	for _, id := range got {
		var k int
		fmt.Sscanf(id, "c%03d", &k)
		if k%2 != 0 {
			t.Errorf("departed connection %s still active", id)
		}
	}
}

func TestConnectionCloseOnce(t *testing.T) {
	st := &stubTransport{}
	c := NewConnection("a", st)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Close()
		}()
	}
	wg.Wait()

	if st.closes != 1 {
		t.Errorf("transport closed %d times, want 1", st.closes)
	}
	if c.Name() != "Guest" {
		t.Errorf("default name %q, want Guest", c.Name())
	}
}

func TestRegistryLimitUnderConcurrentRegister(t *testing.T) {
	const limit = 5
	r := NewRegistry(limit)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		full     int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		id := fmt.Sprintf("c%02d", i)
		go func() {
			defer wg.Done()
			err := r.Register(id, NewConnection(id, &stubTransport{}))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrRegistryFull):
				full++
			default:
				t.Errorf("Register(%s): %v", id, err)
			}
		}()
	}
	wg.Wait()

	if accepted != limit || full != 50-limit {
		t.Fatalf("accepted %d, rejected %d; want %d and %d", accepted, full, limit, 50-limit)
	}
	if r.Len() != limit {
		t.Errorf("Len = %d, want %d", r.Len(), limit)
	}
}

func TestRegistryLimitFreesOnDeactivate(t *testing.T) {
	r := NewRegistry(1)
	_ = r.Register("a", NewConnection("a", &stubTransport{}))

	if err := r.Register("b", NewConnection("b", &stubTransport{})); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("Register(b) err = %v, want ErrRegistryFull", err)
	}
	r.Deactivate("a")
	if err := r.Register("c", NewConnection("c", &stubTransport{})); err != nil {
		t.Errorf("Register(c) after Deactivate: %v", err)
	}
}
