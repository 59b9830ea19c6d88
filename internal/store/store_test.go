package store

import (
	"testing"
	"time"
)

func newTestEngine() *Engine { return NewEngine(nil, 0) }

func TestStringBasics(t *testing.T) {
	e := newTestEngine()
	e.Set("foo", []byte("bar"), SetOptions{})

	v, ok, err := e.Get("foo")
	if err != nil || !ok || string(v) != "bar" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	n, err := e.Strlen("foo")
	if err != nil || n != 3 {
		t.Fatalf("Strlen = %d, %v", n, err)
	}

	n, err = e.Append("foo", []byte("baz"))
	if err != nil || n != 6 {
		t.Fatalf("Append = %d, %v", n, err)
	}
	v, _, _ = e.Get("foo")
	if string(v) != "barbaz" {
		t.Fatalf("after append = %q", v)
	}
}

func TestWrongType(t *testing.T) {
	e := newTestEngine()
	e.Set("x", []byte("1"), SetOptions{})
	if _, err := e.LPush("x", []byte("a")); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestListPushRange(t *testing.T) {
	e := newTestEngine()
	n, err := e.LPush("L", []byte("a"), []byte("b"), []byte("c"))
	if err != nil || n != 3 {
		t.Fatalf("LPush = %d, %v", n, err)
	}
	got, err := e.LRange("L", 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "a"}
	for i, w := range want {
		if string(got[i]) != w {
			t.Fatalf("LRange[%d] = %q, want %q", i, got[i], w)
		}
	}
}

func TestLIndexNegative(t *testing.T) {
	e := newTestEngine()
	e.LPush("L", []byte("a"), []byte("b"), []byte("c"))
	v, ok, err := e.LIndex("L", -1)
	if err != nil || !ok || string(v) != "a" {
		t.Fatalf("LIndex(-1) = %q, %v, %v", v, ok, err)
	}
}

func TestLSetOutOfRange(t *testing.T) {
	e := newTestEngine()
	e.LPush("L", []byte("a"))
	if err := e.LSet("L", 5, []byte("z")); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestSetAlgebra(t *testing.T) {
	e := newTestEngine()
	e.SAdd("s1", []byte("a"), []byte("b"), []byte("c"))
	e.SAdd("s2", []byte("b"), []byte("c"), []byte("d"))

	inter, err := e.SInter("s1", "s2")
	if err != nil {
		t.Fatal(err)
	}
	if !sameMembers(inter, "b", "c") {
		t.Fatalf("SInter = %v", strs(inter))
	}

	diff, err := e.SDiff("s1", "s2")
	if err != nil {
		t.Fatal(err)
	}
	if !sameMembers(diff, "a") {
		t.Fatalf("SDiff = %v", strs(diff))
	}
}

func TestSAddThenSIsMember(t *testing.T) {
	e := newTestEngine()
	e.SAdd("s", []byte("m"))
	ok, err := e.SIsMember("s", []byte("m"))
	if err != nil || !ok {
		t.Fatalf("SIsMember = %v, %v", ok, err)
	}
}

func TestSetRangeThenGetRange(t *testing.T) {
	e := newTestEngine()
	e.Set("k", []byte("Hello World"), SetOptions{})
	n, err := e.SetRange("k", 6, []byte("Redis"))
	if err != nil || n != 11 {
		t.Fatalf("SetRange = %d, %v", n, err)
	}
	v, err := e.GetRange("k", 6, 10)
	if err != nil || string(v) != "Redis" {
		t.Fatalf("GetRange = %q, %v", v, err)
	}
}

func TestSetRangePadsWithZeroBytes(t *testing.T) {
	e := newTestEngine()
	n, err := e.SetRange("k2", 5, []byte("hi"))
	if err != nil || n != 7 {
		t.Fatalf("SetRange = %d, %v", n, err)
	}
	v, _, _ := e.Get("k2")
	if string(v[5:]) != "hi" {
		t.Fatalf("unexpected tail: %q", v)
	}
	for i := 0; i < 5; i++ {
		if v[i] != 0 {
			t.Fatalf("expected zero padding at %d, got %d", i, v[i])
		}
	}
}

func TestExpiryLazyEviction(t *testing.T) {
	e := newTestEngine()
	past := time.Now().Add(-time.Second)
	e.Set("k", []byte("v"), SetOptions{ExpireAt: &past})

	_, ok, err := e.Get("k")
	if err != nil || ok {
		t.Fatalf("expected key to be treated as missing, got ok=%v err=%v", ok, err)
	}
	if e.Len() != 0 {
		t.Fatalf("expected opportunistic eviction, Len()=%d", e.Len())
	}
}

func TestLPopEmptiesKey(t *testing.T) {
	e := newTestEngine()
	e.LPush("L", []byte("only"))
	popped, ok, err := e.LPop("L", 1)
	if err != nil || !ok || len(popped) != 1 {
		t.Fatalf("LPop = %v, %v, %v", popped, ok, err)
	}
	if e.Len() != 0 {
		t.Fatalf("expected key removed once empty, Len()=%d", e.Len())
	}
}

func TestMemUsedTracksMutations(t *testing.T) {
	e := newTestEngine()
	if e.MemUsed() != 0 {
		t.Fatalf("expected 0 MemUsed on empty engine, got %d", e.MemUsed())
	}

	e.Set("k", []byte("hello"), SetOptions{})
	if got := e.MemUsed(); got != 5 {
		t.Fatalf("MemUsed after Set = %d, want 5", got)
	}

	e.Set("k", []byte("hi"), SetOptions{})
	if got := e.MemUsed(); got != 2 {
		t.Fatalf("MemUsed after shrinking Set = %d, want 2", got)
	}

	e.Del("k")
	if got := e.MemUsed(); got != 0 {
		t.Fatalf("MemUsed after Del = %d, want 0", got)
	}
}

func TestMaxMemoryRejectsMutationsOverBudget(t *testing.T) {
	e := NewEngine(nil, 4)

	if err := e.Set("k", []byte("hello"), SetOptions{}); err != nil {
		t.Fatalf("first Set under budget: %v", err)
	}

	if err := e.Set("k2", []byte("more"), SetOptions{}); err != ErrOOM {
		t.Fatalf("expected ErrOOM once over budget, got %v", err)
	}
	if _, err := e.SAdd("s", []byte("m")); err != ErrOOM {
		t.Fatalf("expected ErrOOM for SAdd over budget, got %v", err)
	}

	// Freeing the oversized key brings usage back under budget.
	e.Del("k")
	if err := e.Set("k3", []byte("ok"), SetOptions{}); err != nil {
		t.Fatalf("Set after freeing budget: %v", err)
	}
}

func strs(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

func sameMembers(got [][]byte, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	set := make(map[string]struct{}, len(want))
	for _, w := range want {
		set[w] = struct{}{}
	}
	for _, g := range got {
		if _, ok := set[string(g)]; !ok {
			return false
		}
	}
	return true
}
