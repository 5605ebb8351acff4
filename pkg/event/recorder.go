package event

import (
	"encoding/json"
	"log"
	"sync"
)

// Recorder はイベントの記録先。
// 記録の失敗で操作自体を失敗させないため、エラーは返さない。
type Recorder interface {
	Record(e *Event)
}

// LogRecorder はイベントを1行のJSONとして標準ロガーに出力する。
type LogRecorder struct{}

// Record はイベントをログに出力する。
func (LogRecorder) Record(e *Event) {
	b, err := json.Marshal(e)
	if err != nil {
		log.Printf("[Event] イベントのシリアライズに失敗: id=%s type=%s error=%v", e.ID, e.EventType, err)
		return
	}
	log.Printf("[Event] %s", b)
}

// Tee は複数の記録先に順に記録するRecorderを返す。nilの記録先は無視する。
func Tee(rs ...Recorder) Recorder {
	out := make(tee, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type tee []Recorder

func (t tee) Record(e *Event) {
	for _, r := range t {
		r.Record(e)
	}
}

// MemoryRecorder はイベントをメモリに保持する。並行に利用してよい。
type MemoryRecorder struct {
	mu     sync.Mutex
	events []*Event
}

// Record はイベントを追加する。
func (r *MemoryRecorder) Record(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events は記録済みのイベントの複製を返す。
func (r *MemoryRecorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// ByAggregate は指定した対象のイベントを記録順に返す。
func (r *MemoryRecorder) ByAggregate(aggregateID string) []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Event
	for _, e := range r.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out
}

// Stream は1つの対象に対するイベントの列を組み立てる。Versionは1から順に振る。
// 1つの対象は1つのgoroutineが所有する前提で、並行利用は想定しない。
type Stream struct {
	recorder      Recorder
	aggregateID   string
	aggregateType AggregateType
	version       int64
}

// NewStream はStreamを生成する。recorderがnilの場合は何も記録しない。
func NewStream(r Recorder, aggregateID string, aggregateType AggregateType) *Stream {
	return &Stream{recorder: r, aggregateID: aggregateID, aggregateType: aggregateType}
}

// Emit はイベントを生成して記録する。
func (s *Stream) Emit(eventType Type, data any) {
	if s.recorder == nil {
		return
	}
	e, err := New(s.aggregateID, s.aggregateType, eventType, s.version+1, data)
	if err != nil {
		log.Printf("[Event] イベントの生成に失敗: aggregate=%s type=%s error=%v", s.aggregateID, eventType, err)
		return
	}
	s.version = e.Version
	s.recorder.Record(e)
}

// Version は直近に記録したイベントのVersionを返す。
func (s *Stream) Version() int64 {
	return s.version
}
