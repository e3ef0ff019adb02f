package resource

import (
	"errors"
	"sync"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, gen, err := table.Insert("test")
	if err != nil {
		t.Fatal(err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h, gen)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if _, ok := table.Get(h, gen+1); ok {
		t.Fatal("Get with wrong generation should fail")
	}

	val, err = table.Remove(h, gen)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestTable_HandleReuseBumpsGeneration(t *testing.T) {
	table := NewTable()

	h1, gen1, _ := table.Insert("first")
	if _, err := table.Remove(h1, gen1); err != nil {
		t.Fatal(err)
	}

	h2, gen2, _ := table.Insert("second")
	if h2 != h1 {
		t.Fatalf("Expected handle reuse, got %d and %d", h1, h2)
	}
	if gen2 == gen1 {
		t.Fatal("Expected a new generation for a reused handle")
	}
	if _, ok := table.Get(h1, gen1); ok {
		t.Fatal("Stale reference resolved after reuse")
	}
	if v, _, ok := table.Lookup(h2); !ok || v != "second" {
		t.Fatalf("Lookup = %v, %v", v, ok)
	}
	if _, err := table.Remove(h1, gen1); !errors.Is(err, ErrStale) {
		t.Fatalf("Remove with stale generation: %v", err)
	}
}

func TestTable_Borrow(t *testing.T) {
	table := NewTable()
	h, gen, _ := table.Insert("value")

	if !table.Borrow(h, gen) || !table.Borrow(h, gen) {
		t.Fatal("Borrow failed")
	}
	if table.BorrowCount(h) != 2 {
		t.Fatalf("BorrowCount = %d", table.BorrowCount(h))
	}

	if _, err := table.Remove(h, gen); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("Remove with borrows: %v", err)
	}

	table.ReturnBorrow(h, gen)
	table.ReturnBorrow(h, gen)
	if table.ReturnBorrow(h, gen) {
		t.Fatal("ReturnBorrow below zero should fail")
	}
	if _, err := table.Remove(h, gen); err != nil {
		t.Fatalf("Remove after returning borrows: %v", err)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, gen, _ := table.Insert("test")
	table.Borrow(h, gen)
	table.ReturnBorrow(h, gen)
	table.Remove(h, gen)

	want := []EventType{EventCreated, EventBorrowed, EventBorrowReturned, EventDropped}
	if len(obs.events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(obs.events))
	}
	for i, e := range obs.events {
		if e.Type != want[i] {
			t.Errorf("event %d: got %v, want %v", i, e.Type, want[i])
		}
		if e.Handle != h || e.Gen != gen {
			t.Errorf("event %d: wrong handle/gen %d/%d", i, e.Handle, e.Gen)
		}
	}

	table.Unsubscribe(obs)
	table.Insert("other")
	if len(obs.events) != len(want) {
		t.Fatal("Unsubscribed observer received an event")
	}
}

func TestTable_ObserverMayReenter(t *testing.T) {
	table := NewTable()
	var seen any
	table.Subscribe(observerFunc(func(e Event) {
		if e.Type == EventCreated {
			seen, _ = table.Get(e.Handle, e.Gen)
		}
	}))

	table.Insert("reentrant")
	if seen != "reentrant" {
		t.Fatalf("observer saw %v", seen)
	}
}

type observerFunc func(Event)

func (f observerFunc) OnResourceEvent(e Event) { f(e) }

func TestTable_ReplaceAndEach(t *testing.T) {
	table := NewTable()
	h1, g1, _ := table.Insert(1)
	h2, g2, _ := table.Insert(2)
	table.Insert(3)

	if !table.Replace(h2, g2, 20) {
		t.Fatal("Replace failed")
	}
	table.Remove(h1, g1)

	var got []any
	table.Each(func(h Handle, gen uint32, v any) bool {
		got = append(got, v)
		return true
	})
	if len(got) != 2 || got[0] != 20 || got[1] != 3 {
		t.Fatalf("Each = %v", got)
	}

	count := 0
	table.Each(func(Handle, uint32, any) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Each did not stop early: %d", count)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	table.Insert("x")
	table.Close()

	if _, _, err := table.Insert("y"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Insert after Close: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("Len after Close = %d", table.Len())
	}
}

func TestTable_InvalidHandle(t *testing.T) {
	table := NewTable()
	if _, ok := table.Get(0, 1); ok {
		t.Error("handle 0 should be invalid")
	}
	if _, _, ok := table.Lookup(99); ok {
		t.Error("out of range handle should be invalid")
	}
	if table.Borrow(99, 1) {
		t.Error("Borrow of invalid handle should fail")
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, gen, err := table.Insert(i*100 + j)
				if err != nil {
					t.Error(err)
					return
				}
				table.Get(h, gen)
				if j%2 == 0 {
					table.Remove(h, gen)
				}
			}
		}(i)
	}
	wg.Wait()

	if table.Len() != 400 {
		t.Fatalf("Len = %d, want 400", table.Len())
	}
}
