package eventstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/docgate/pkg/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("ストアの初期化に失敗: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()

	t.Run("Streamで記録したイベントが対象IDごとにVersion順で取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		data := event.OperationData{Identity: "alice", Kind: "merge"}
		stream := event.NewStream(s, "req-1", event.AggregateTypeOperation)
		stream.Emit(event.TypeOperationReceived, data)
		stream.Emit(event.TypeOperationStaged, data)
		event.NewStream(s, "req-2", event.AggregateTypeOperation).Emit(event.TypeOperationReceived, data)
		stream.Emit(event.TypeOperationCompleted, event.OperationCompletedData{OperationData: data, Size: 42})

		got, err := s.ByAggregate(context.Background(), "req-1")
		if err != nil {
			t.Fatalf("ByAggregate()でエラーが発生: %v", err)
		}
		want := []event.Type{event.TypeOperationReceived, event.TypeOperationStaged, event.TypeOperationCompleted}
		if len(got) != len(want) {
			t.Fatalf("件数 = %d, want %d", len(got), len(want))
		}
		for i, e := range got {
			if e.EventType != want[i] || e.Version != int64(i+1) {
				t.Errorf("[%d] type = %s, version = %d", i, e.EventType, e.Version)
			}
			if e.AggregateType != event.AggregateTypeOperation {
				t.Errorf("[%d] aggregate_type = %s", i, e.AggregateType)
			}
		}

		completed, err := event.DecodeData[event.OperationCompletedData](got[2])
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if completed.Identity != "alice" || completed.Size != 42 {
			t.Errorf("data = %+v", completed)
		}
	})

	t.Run("存在しない対象IDは空のスライスを返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		got, err := s.ByAggregate(context.Background(), "missing")
		if err != nil {
			t.Fatalf("ByAggregate()でエラーが発生: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("got = %v, want empty", got)
		}
	})

	t.Run("同じ対象とVersionの追記はエラーになること", func(t *testing.T) {
		t.Parallel()

		s := newTestStore(t)
		ctx := context.Background()
		first, _ := event.New("req-1", event.AggregateTypeOperation, event.TypeOperationReceived, 1, nil)
		dup, _ := event.New("req-1", event.AggregateTypeOperation, event.TypeOperationStaged, 1, nil)
		if err := s.Append(ctx, first); err != nil {
			t.Fatalf("Append()でエラーが発生: %v", err)
		}
		if err := s.Append(ctx, dup); err == nil {
			t.Error("重複したVersionの追記が成功した")
		}
		// Recordは失敗をログに残すだけで、既存のイベントは変わらない。
		s.Record(dup)
		got, _ := s.ByAggregate(ctx, "req-1")
		if len(got) != 1 || got[0].EventType != event.TypeOperationReceived {
			t.Errorf("got = %+v", got)
		}
	})
}

func TestFind(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	appendAt := func(id string, typ event.Type, at time.Time) {
		t.Helper()
		e, err := event.New(id, event.AggregateTypeOperation, typ, 1, nil)
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		e.CreatedAt = at
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append()でエラーが発生: %v", err)
		}
	}
	appendAt("a", event.TypeOperationFailed, base)
	appendAt("b", event.TypeOperationCompleted, base.Add(500*time.Millisecond))
	appendAt("c", event.TypeOperationFailed, base.Add(1100*time.Millisecond))
	appendAt("d", event.TypeOperationFailed, base.Add(2*time.Second))

	t.Run("タイプで絞り込めること", func(t *testing.T) {
		got, err := s.Find(ctx, Query{Type: event.TypeOperationFailed})
		if err != nil {
			t.Fatalf("Find()でエラーが発生: %v", err)
		}
		if ids := aggregateIDs(got); ids != "acd" {
			t.Errorf("ids = %q, want %q", ids, "acd")
		}
	})

	t.Run("日時で絞り込むと小数秒の桁が違っても時刻順になること", func(t *testing.T) {
		got, err := s.Find(ctx, Query{Since: base.Add(100 * time.Millisecond)})
		if err != nil {
			t.Fatalf("Find()でエラーが発生: %v", err)
		}
		if ids := aggregateIDs(got); ids != "bcd" {
			t.Errorf("ids = %q, want %q", ids, "bcd")
		}
		if !got[0].CreatedAt.Equal(base.Add(500 * time.Millisecond)) {
			t.Errorf("CreatedAt = %v", got[0].CreatedAt)
		}
	})

	t.Run("件数上限が効くこと", func(t *testing.T) {
		got, err := s.Find(ctx, Query{Limit: 2})
		if err != nil {
			t.Fatalf("Find()でエラーが発生: %v", err)
		}
		if ids := aggregateIDs(got); ids != "ab" {
			t.Errorf("ids = %q, want %q", ids, "ab")
		}
	})
}

func TestConcurrentRecord(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			stream := event.NewStream(s, string(rune('a'+n)), event.AggregateTypeOperation)
			stream.Emit(event.TypeOperationReceived, nil)
			stream.Emit(event.TypeOperationFailed, nil)
		}(i)
	}
	wg.Wait()

	got, err := s.Find(context.Background(), Query{Limit: 1000})
	if err != nil {
		t.Fatalf("Find()でエラーが発生: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("件数 = %d, want 20", len(got))
	}
}

func aggregateIDs(events []*event.Event) string {
	var ids string
	for _, e := range events {
		ids += e.AggregateID
	}
	return ids
}
