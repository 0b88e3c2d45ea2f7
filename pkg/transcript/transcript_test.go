package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppend_ClassifiesStrings(t *testing.T) {
	tr := New("s1")

	e := tr.Append("  SELECT * FROM spans", OriginSystem)
	require.Equal(t, KindCode, e.Kind)
	require.Equal(t, "  SELECT * FROM spans", e.Text)

	e = tr.Append("select lowercase is not code", OriginSystem)
	require.Equal(t, KindText, e.Kind)

	e = tr.Append("Draft SQL:", OriginSystem)
	require.Equal(t, KindText, e.Kind)

	e = tr.Append("show me spans", OriginUser)
	require.Equal(t, KindText, e.Kind)
	require.Equal(t, OriginUser, e.Origin)
}

func TestAppend_ObjectsRoundTrip(t *testing.T) {
	tr := New("s1")
	obj := map[string]any{
		"intent": "verify_tables",
		"status": "mismatch",
		"diffs":  []any{map[string]any{"field": "ts", "expected": "TIMESTAMP"}},
	}
	e := tr.Append(obj, OriginSystem)
	require.Equal(t, KindObject, e.Kind)
	require.Contains(t, e.Text, "\n  \"diffs\": [")

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.Text), &back))
	require.Equal(t, obj, back)
	require.JSONEq(t, e.Text, string(e.Object))
}

func TestAppend_CoercesScalarsAndNil(t *testing.T) {
	tr := New("s1")

	e := tr.Append(42, OriginSystem)
	require.Equal(t, KindText, e.Kind)
	require.Equal(t, "42", e.Text)

	e = tr.Append(true, OriginSystem)
	require.Equal(t, "true", e.Text)

	e = tr.Append(nil, OriginSystem)
	require.Equal(t, KindObject, e.Kind)
	require.Equal(t, "null", e.Text)

	e = tr.Append(json.RawMessage(`{"a":1}`), OriginSystem)
	require.Equal(t, KindObject, e.Kind)
	require.Equal(t, "{\n  \"a\": 1\n}", e.Text)

	e = tr.Append(make(chan int), OriginSystem)
	require.Equal(t, KindText, e.Kind)
	require.NotEmpty(t, e.Text)
}

func TestAppend_SequenceAndSinks(t *testing.T) {
	var got []Entry
	failing := SinkFunc(func(Entry) error { return errors.New("boom") })
	tr := New("s1",
		WithSink(failing),
		WithSink(SinkFunc(func(e Entry) error {
			got = append(got, e)
			return nil
		})),
		WithClock(func() time.Time { return time.UnixMilli(1000) }),
	)

	tr.Append("one", OriginUser)
	tr.Append("two", "")

	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].Seq)
	require.Equal(t, uint64(2), got[1].Seq)
	require.Equal(t, OriginSystem, got[1].Origin)
	require.Equal(t, int64(1000), got[0].CreatedAtMs)
	require.Equal(t, "s1", got[0].SessionID)
	require.Equal(t, got, tr.Entries())
}

func TestAppend_ConcurrentAppendsAreTotallyOrdered(t *testing.T) {
	var mu sync.Mutex
	var seqs []uint64
	tr := New("s1", WithSink(SinkFunc(func(e Entry) error {
		mu.Lock()
		seqs = append(seqs, e.Seq)
		mu.Unlock()
		return nil
	})))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append("x", OriginSystem)
		}()
	}
	wg.Wait()

	require.Equal(t, 50, tr.Len())
	for i, s := range seqs {
		require.Equal(t, uint64(i+1), s)
	}
}

func TestWriterSink_Plain(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := New("s1", WithSink(NewWriterSink(buf)))
	tr.Append("show me spans", OriginUser)
	tr.Append("Draft SQL:", OriginSystem)
	tr.Append("SELECT * FROM spans", OriginSystem)
	tr.Append(map[string]any{"ok": true}, OriginSystem)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, []string{
		"> show me spans",
		"Draft SQL:",
		"SELECT * FROM spans",
		"{",
		"  \"ok\": true",
		"}",
	}, lines)
}
