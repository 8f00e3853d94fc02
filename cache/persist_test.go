package cache

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/IvanBrykalov/snapcache/snapshot"
)

// failingTarget reads from an embedded Memory but refuses every write.
type failingTarget struct {
	snapshot.Memory
	writes int
}

func (f *failingTarget) Write([]byte) error {
	f.writes++
	return errors.New("disk full")
}

// countingTarget counts successful writes.
type countingTarget struct {
	snapshot.Memory
	writes int
}

func (c *countingTarget) Write(p []byte) error {
	c.writes++
	return c.Memory.Write(p)
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// Reload reproduces recency: after set(A) set(B) set(C), set(D) on the
// reloaded instance evicts A.
func TestPersist_RoundTripKeepsRecency(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	c1 := mustNew(t, Options[string]{MaxSize: 3, Snapshot: snapshot.NewFile(path)})
	c1.Set("A", "a")
	c1.Set("B", "b")
	c1.Set("C", "c")

	c2 := mustNew(t, Options[string]{MaxSize: 3, Snapshot: snapshot.NewFile(path)})
	if got, want := c2.Keys(), []string{"C", "B", "A"}; !slices.Equal(got, want) {
		t.Fatalf("reloaded Keys() = %v, want %v", got, want)
	}
	c2.Set("D", "d")
	if c2.Has("A") {
		t.Fatal("A is the true LRU and must be evicted")
	}
	for _, k := range []string{"B", "C", "D"} {
		if !c2.Has(k) {
			t.Fatalf("%s must survive", k)
		}
	}
	if v, _ := c2.Get("B"); v != "b" {
		t.Fatalf("B = %q, want b", v)
	}
}

// A promotion by Get is durable state.
func TestPersist_GetPromotionIsPersisted(t *testing.T) {
	t.Parallel()

	tgt := &snapshot.Memory{}
	c1 := mustNew(t, Options[int]{MaxSize: 3, Snapshot: tgt})
	c1.Set("A", 1)
	c1.Set("B", 2)
	c1.Set("C", 3)
	c1.Get("A")

	c2 := mustNew(t, Options[int]{MaxSize: 3, Snapshot: tgt})
	c2.Set("D", 4)
	if c2.Has("B") {
		t.Fatal("B must be the LRU after the persisted promotion of A")
	}
	if !c2.Has("A") {
		t.Fatal("A must survive")
	}
}

// Reads that do not change structure do not write.
func TestPersist_WritesOnlyOnChange(t *testing.T) {
	t.Parallel()

	tgt := &countingTarget{}
	c := mustNew(t, Options[int]{MaxSize: 3, Snapshot: tgt})

	c.Set("a", 1) // 1
	c.Set("b", 2) // 2
	c.Get("b")    // head already: no write
	c.Has("a")    // no write
	c.Get("zzz")  // miss: no write
	c.Delete("x") // absent: no write
	c.Len()       // nothing expired: no write
	if tgt.writes != 2 {
		t.Fatalf("writes = %d, want 2", tgt.writes)
	}

	c.Get("a")    // promotion: 3
	c.Delete("a") // 4
	c.Clear()     // 5
	if tgt.writes != 5 {
		t.Fatalf("writes = %d, want 5", tgt.writes)
	}
}

// Entries whose TTL elapsed while persisted are dropped on load.
func TestPersist_ExpiredOnReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	c1 := mustNew(t, Options[string]{MaxSize: 4, Snapshot: snapshot.NewFile(path)})
	c1.SetWithTTL("short", "s", 50*time.Millisecond)
	c1.Set("long", "l")

	time.Sleep(60 * time.Millisecond)

	c2 := mustNew(t, Options[string]{MaxSize: 4, Snapshot: snapshot.NewFile(path)})
	if c2.Has("short") {
		t.Fatal("short must be gone after reload")
	}
	if !c2.Has("long") {
		t.Fatal("long must survive reload")
	}
	if c2.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c2.Len())
	}
}

// TTL deadlines survive a reload when they have not elapsed yet.
func TestPersist_DeadlineSurvivesReload(t *testing.T) {
	t.Parallel()

	clk := newClock()
	tgt := &snapshot.Memory{}
	c1 := mustNew(t, Options[int]{MaxSize: 2, Snapshot: tgt, Clock: clk})
	c1.SetWithTTL("a", 1, time.Second)

	clk.add(500 * time.Millisecond)
	c2 := mustNew(t, Options[int]{MaxSize: 2, Snapshot: tgt, Clock: clk})
	if !c2.Has("a") {
		t.Fatal("a must still be live")
	}
	clk.add(500 * time.Millisecond)
	if c2.Has("a") {
		t.Fatal("a must expire at its original deadline")
	}
}

// Far-future deadlines, including ones past the int64 nanosecond range,
// survive encoding and reload.
func TestPersist_FarFutureDeadlineSurvivesReload(t *testing.T) {
	t.Parallel()

	tgt := &snapshot.Memory{}
	_ = tgt.Write([]byte(`{"entries":[{"key":"a","value":1,"expiresAt":9300000000000}],"lruOrder":["a"]}`))
	c1 := mustNew(t, Options[int]{MaxSize: 4, Snapshot: tgt})
	if !c1.Has("a") || c1.Len() != 1 {
		t.Fatal("record expiring in year ~2264 must be kept")
	}

	c1.SetWithTTL("b", 2, time.Duration(math.MaxInt64))
	c2 := mustNew(t, Options[int]{MaxSize: 4, Snapshot: tgt})
	if got := c2.Keys(); !slices.Equal(got, []string{"b", "a"}) {
		t.Fatalf("Keys() after reload = %v, want [b a]", got)
	}
	if v, ok := c2.Get("b"); !ok || v != 2 {
		t.Fatalf("Get(b) = (%v,%v), want (2,true)", v, ok)
	}
}

// A malformed file never fails construction; the cache starts empty and works.
func TestPersist_MalformedFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	if err := os.WriteFile(path, []byte(`{"entries": [ oops`), 0o644); err != nil {
		t.Fatal(err)
	}
	log, logs := observed()

	c := mustNew(t, Options[int]{MaxSize: 2, Snapshot: snapshot.NewFile(path), Logger: log})
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
	if n := logs.FilterMessageSnippet("snapshot discarded").Len(); n != 1 {
		t.Fatalf("want one discard log, got %d", n)
	}

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatal("cache must be usable after a bad snapshot")
	}
}

// Valid JSON that does not match the value type is discarded too.
func TestPersist_WrongValueTypeStartsEmpty(t *testing.T) {
	t.Parallel()

	tgt := &snapshot.Memory{}
	_ = tgt.Write([]byte(`{"entries":[{"key":"a","value":"not-an-int","expiresAt":null}],"lruOrder":["a"]}`))

	c := mustNew(t, Options[int]{MaxSize: 2, Snapshot: tgt})
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestPersist_MissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "cache.json")
	c := mustNew(t, Options[int]{MaxSize: 2, Snapshot: snapshot.NewFile(path)})
	if c.Len() != 0 {
		t.Fatal("missing snapshot must start empty")
	}
	c.Set("a", 1)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot must be written on first mutation: %v", err)
	}
}

// Write failures are logged and counted, never surfaced.
func TestPersist_WriteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	tgt := &failingTarget{}
	m := &snapMetrics{}
	c, err := New[int](Options[int]{MaxSize: 2, Snapshot: tgt, Logger: log, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}

	c.Set("a", 1)
	c.Set("b", 2)
	if !c.Delete("a") {
		t.Fatal("Delete must still report removal")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatal("memory must stay authoritative")
	}
	if tgt.writes != 3 {
		t.Fatalf("writes = %d, want 3", tgt.writes)
	}
	if n := logs.FilterMessage("snapshot write failed").Len(); n != 3 {
		t.Fatalf("want 3 write-failure logs, got %d", n)
	}
	if m.failed != 3 || m.ok != 0 {
		t.Fatalf("metrics ok=%d failed=%d, want 0/3", m.ok, m.failed)
	}

	// Close is an explicit request and does report the failure.
	if err := c.Close(); err == nil {
		t.Fatal("Close must return the final write error")
	}
}

type snapMetrics struct {
	NoopMetrics
	ok, failed int
}

func (m *snapMetrics) Snapshot(_ int, err error) {
	if err != nil {
		m.failed++
		return
	}
	m.ok++
}

// A snapshot bigger than MaxSize keeps only the most recent keys.
func TestPersist_ReloadIntoSmallerCache(t *testing.T) {
	t.Parallel()

	tgt := &snapshot.Memory{}
	c1 := mustNew(t, Options[int]{MaxSize: 4, Snapshot: tgt})
	for i, k := range []string{"a", "b", "c", "d"} {
		c1.Set(k, i)
	}

	c2 := mustNew(t, Options[int]{MaxSize: 2, Snapshot: tgt})
	if got, want := c2.Keys(), []string{"d", "c"}; !slices.Equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	checkInvariants(t, c2)
}

// Keys missing from lruOrder are appended; unknown order keys are skipped.
func TestPersist_OrderReconciliation(t *testing.T) {
	t.Parallel()

	tgt := &snapshot.Memory{}
	_ = tgt.Write([]byte(`{
		"entries": [
			{"key":"a","value":1,"expiresAt":null},
			{"key":"b","value":2,"expiresAt":null},
			{"key":"c","value":3,"expiresAt":null},
			{"key":"b","value":20,"expiresAt":null}
		],
		"lruOrder": ["c","ghost","c","a"]
	}`))

	c := mustNew(t, Options[int]{MaxSize: 5, Snapshot: tgt})
	if got, want := c.Keys(), []string{"c", "a", "b"}; !slices.Equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if v, _ := c.Get("b"); v != 20 {
		t.Fatalf("b = %d, want 20 (last record wins)", v)
	}
	checkInvariants(t, c)
}

func TestExportImport(t *testing.T) {
	t.Parallel()

	src := mustNew(t, Options[string]{MaxSize: 3})
	src.Set("x", "1")
	src.Set("y", "2")
	src.Get("x")

	var buf bytes.Buffer
	if err := src.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	tgt := &countingTarget{}
	dst := mustNew(t, Options[string]{MaxSize: 3, Snapshot: tgt})
	dst.Set("old", "gone")
	if err := dst.Import(&buf); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got, want := dst.Keys(), []string{"x", "y"}; !slices.Equal(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if tgt.writes != 2 {
		t.Fatalf("Import must persist: writes = %d, want 2", tgt.writes)
	}
}

// A malformed import is reported and leaves the cache untouched.
func TestImport_MalformedPayload(t *testing.T) {
	t.Parallel()

	c := mustNew(t, Options[int]{MaxSize: 3})
	c.Set("keep", 1)

	for _, payload := range []string{
		`garbage`,
		`{"entries":[]}`,
		`{"entries":[{"key":"a","value":"str"}],"lruOrder":["a"]}`,
	} {
		err := c.Import(strings.NewReader(payload))
		if !errors.Is(err, ErrFormat) {
			t.Fatalf("Import(%s): want ErrFormat, got %v", payload, err)
		}
	}
	if got := c.Keys(); !slices.Equal(got, []string{"keep"}) {
		t.Fatalf("Keys() = %v, want [keep]", got)
	}
}

// Values that cannot be encoded fail the write but not the operation.
func TestPersist_UnencodableValue(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	c := mustNew(t, Options[any]{MaxSize: 2, Snapshot: &snapshot.Memory{}, Logger: log})
	c.Set("ch", make(chan int))
	if !c.Has("ch") {
		t.Fatal("value must stay in memory")
	}
	if logs.FilterMessage("snapshot write failed").Len() != 1 {
		t.Fatal("encode failure must be logged")
	}
}
