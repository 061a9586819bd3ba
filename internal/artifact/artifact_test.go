package artifact

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestManager_PublishAndRelease(t *testing.T) {
	m := NewManager()

	if _, ok := m.CurrentBytes(); ok {
		t.Fatal("expected no bytes before publish")
	}

	a, err := m.Publish([]byte("RIFF1"))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if a.ID == "" || a.Handle.ID() != a.ID {
		t.Errorf("artifact id mismatch: %q vs %q", a.ID, a.Handle.ID())
	}

	b, ok := m.CurrentBytes()
	if !ok || !bytes.Equal(b, []byte("RIFF1")) {
		t.Errorf("CurrentBytes = %q, %v", b, ok)
	}

	m.Release()
	if _, ok := m.CurrentBytes(); ok {
		t.Error("bytes still present after release")
	}
	if a.Handle.Valid() {
		t.Error("handle still valid after release")
	}
	if _, err := a.Handle.Bytes(); !errors.Is(err, ErrRevoked) {
		t.Errorf("expected ErrRevoked, got %v", err)
	}

	// releasing twice is fine
	m.Release()
	if m.LiveHandles() != 0 {
		t.Errorf("LiveHandles = %d, want 0", m.LiveHandles())
	}
}

// TestManager_PublishReplaces verifies that a second publish revokes the
// first handle so only one is ever live.
func TestManager_PublishReplaces(t *testing.T) {
	m := NewManager()

	var released []string
	m.OnRelease(func(a *Artifact) {
		if m.LiveHandles() > 1 {
			t.Errorf("LiveHandles = %d during release", m.LiveHandles())
		}
		released = append(released, a.ID)
	})

	first, _ := m.Publish([]byte("one"))
	second, _ := m.Publish([]byte("two"))

	if first.Handle.Valid() {
		t.Error("first handle still valid after second publish")
	}
	if !second.Handle.Valid() {
		t.Error("second handle should be valid")
	}
	if m.LiveHandles() != 1 {
		t.Errorf("LiveHandles = %d, want 1", m.LiveHandles())
	}
	if len(released) != 1 || released[0] != first.ID {
		t.Errorf("released = %v, want [%s]", released, first.ID)
	}
	if m.Current() != second {
		t.Error("Current is not the second artifact")
	}
}

func TestManager_PublishCopies(t *testing.T) {
	m := NewManager()
	src := []byte("abc")
	a, _ := m.Publish(src)
	src[0] = 'X'

	b, _ := a.Handle.Bytes()
	if string(b) != "abc" {
		t.Errorf("artifact bytes changed with source: %q", b)
	}
	if a.Size() != 3 {
		t.Errorf("Size = %d, want 3", a.Size())
	}
}

func TestManager_PublishEmpty(t *testing.T) {
	m := NewManager()
	if _, err := m.Publish(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestManager_ConcurrentPublish(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Publish([]byte{byte(i)})
			if n := m.LiveHandles(); n > 1 {
				t.Errorf("LiveHandles = %d", n)
			}
		}()
	}
	wg.Wait()

	if m.LiveHandles() != 1 {
		t.Errorf("LiveHandles = %d, want 1", m.LiveHandles())
	}
	if m.Published() != 50 {
		t.Errorf("Published = %d, want 50", m.Published())
	}
}
