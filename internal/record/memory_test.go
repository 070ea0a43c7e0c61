package record

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreWriteAndRead(t *testing.T) {
	s := NewMemoryStore()
	changed := s.Write([]Record{
		{Key: "GetUser({\"id\":1})", Fields: map[string]any{"user": Reference{Key: "User:1"}}},
		{Key: "User:1", Fields: map[string]any{"id": "1", "name": "Ann"}},
	})
	require.Equal(t, []string{"GetUser({\"id\":1})", "User:1"}, changed)

	got := s.Read([]string{"User:1", "User:2"})
	want := map[string]Record{
		"User:1": {Key: "User:1", Fields: map[string]any{"id": "1", "name": "Ann"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("read mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 2, s.Len())
}

func TestMemoryStoreMergesFields(t *testing.T) {
	s := NewMemoryStore()
	s.Write([]Record{{Key: "User:1", Fields: map[string]any{"id": "1", "name": "Ann"}}})
	changed := s.Write([]Record{{Key: "User:1", Fields: map[string]any{"email": "ann@example.com"}}})
	require.Equal(t, []string{"User:1"}, changed)

	rec := s.Read([]string{"User:1"})["User:1"]
	want := map[string]any{"id": "1", "name": "Ann", "email": "ann@example.com"}
	if diff := cmp.Diff(want, rec.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreUnchangedWriteReportsNothing(t *testing.T) {
	s := NewMemoryStore()
	s.Write([]Record{{Key: "User:1", Fields: map[string]any{"age": json.Number("30"), "tags": []any{"a"}}}})
	changed := s.Write([]Record{{Key: "User:1", Fields: map[string]any{"age": json.Number("30"), "tags": []any{"a"}}}})
	require.Empty(t, changed)
}

func TestMemoryStoreRecordsAreNotAliased(t *testing.T) {
	s := NewMemoryStore()
	in := Record{Key: "User:1", Fields: map[string]any{"name": "Ann"}}
	s.Write([]Record{in})
	in.Fields["name"] = "Bob"

	before := s.Read([]string{"User:1"})["User:1"]
	s.Write([]Record{{Key: "User:1", Fields: map[string]any{"name": "Cid"}}})
	require.Equal(t, "Ann", before.Fields["name"])
	require.Equal(t, "Cid", s.Read([]string{"User:1"})["User:1"].Fields["name"])
}

func TestMemoryStoreSubscribe(t *testing.T) {
	s := NewMemoryStore()
	s.Write([]Record{
		{Key: "User:1", Fields: map[string]any{"name": "Ann"}},
		{Key: "User:2", Fields: map[string]any{"name": "Bob"}},
	})

	var got [][]string
	unsubscribe := s.Subscribe([]string{"User:1"}, func(changed []string) {
		got = append(got, changed)
	})

	s.Write([]Record{{Key: "User:2", Fields: map[string]any{"name": "Bo"}}})
	s.Write([]Record{{Key: "User:1", Fields: map[string]any{"name": "Ann"}}})
	s.Write([]Record{
		{Key: "User:1", Fields: map[string]any{"name": "Anna"}},
		{Key: "User:2", Fields: map[string]any{"name": "Bobby"}},
	})
	unsubscribe()
	unsubscribe()
	s.Write([]Record{{Key: "User:1", Fields: map[string]any{"name": "Annie"}}})

	if diff := cmp.Diff([][]string{{"User:1"}}, got); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreRemoveAndClear(t *testing.T) {
	s := NewMemoryStore()
	s.Write([]Record{
		{Key: "A", Fields: map[string]any{"v": 1}},
		{Key: "B", Fields: map[string]any{"v": 2}},
		{Key: "C", Fields: map[string]any{"v": 3}},
	})

	var got [][]string
	s.Subscribe([]string{"A", "B", "C"}, func(changed []string) {
		got = append(got, changed)
	})

	s.Remove("A", "missing")
	require.Empty(t, s.Read([]string{"A"}))
	s.Clear()
	require.Equal(t, 0, s.Len())

	if diff := cmp.Diff([][]string{{"A"}, {"B", "C"}}, got); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryStoreConcurrentWrites(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			field := string(rune('a' + i%26))
			s.Write([]Record{{Key: "Shared", Fields: map[string]any{field + "x": i}}})
			_ = s.Read([]string{"Shared"})
		}(i)
	}
	wg.Wait()

	rec := s.Read([]string{"Shared"})["Shared"]
	require.Len(t, rec.Fields, 26)
}

func TestSubscriberMayWriteFromNotification(t *testing.T) {
	s := NewMemoryStore()
	s.Write([]Record{{Key: "A", Fields: map[string]any{"v": 1}}})

	calls := 0
	s.Subscribe([]string{"A"}, func([]string) {
		calls++
		s.Write([]Record{{Key: "B", Fields: map[string]any{"v": calls}}})
		s.Subscribe([]string{"B"}, func([]string) {})
	})
	s.Write([]Record{{Key: "A", Fields: map[string]any{"v": 2}}})
	require.Equal(t, 1, calls)
}

func TestMemoryStoreCopiesNestedValues(t *testing.T) {
	s := NewMemoryStore()
	tags := []any{"a", map[string]any{"k": []any{"x"}}}
	s.Write([]Record{{Key: "Post:1", Fields: map[string]any{"tags": tags}}})
	tags[0] = "changed"
	tags[1].(map[string]any)["k"].([]any)[0] = "changed"

	got := s.Read([]string{"Post:1"})["Post:1"].Fields["tags"]
	want := []any{"a", map[string]any{"k": []any{"x"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyValue(t *testing.T) {
	in := map[string]any{"list": []any{json.Number("1"), Reference{Key: "User:1"}}}
	out := CopyValue(in).(map[string]any)
	out["list"].([]any)[0] = "x"
	require.Equal(t, json.Number("1"), in["list"].([]any)[0])
	require.Equal(t, "scalar", CopyValue("scalar"))
}

func TestChanged(t *testing.T) {
	s := NewMemoryStore()
	seen := []Record{
		{Key: "User:1", Fields: map[string]any{"name": "Ann", "tags": []any{"a"}}},
		{Key: "User:2", Fields: map[string]any{"name": "Bob"}},
		{Key: "User:3", Fields: map[string]any{"name": "Cid"}},
	}
	s.Write(seen)
	require.Empty(t, Changed(s, seen))

	s.Write([]Record{{Key: "User:1", Fields: map[string]any{"email": "ann@example.com"}}})
	s.Write([]Record{{Key: "User:2", Fields: map[string]any{"name": "Bo"}}})
	s.Remove("User:3")
	require.Equal(t, []string{"User:2", "User:3"}, Changed(s, seen))
}
