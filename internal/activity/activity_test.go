package activity

import (
	"sync"
	"time"
)

type documentSignal struct {
	at      time.Time
	focused bool
}

type recordingSink struct {
	mu        sync.Mutex
	activity  []time.Time
	documents []documentSignal
}

func (sink *recordingSink) OnActivity(now time.Time) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.activity = append(sink.activity, now)
}

func (sink *recordingSink) OnEditableDocumentChanged(now time.Time, focused bool) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.documents = append(sink.documents, documentSignal{at: now, focused: focused})
}

func (sink *recordingSink) Activity() []time.Time {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]time.Time(nil), sink.activity...)
}

func (sink *recordingSink) Documents() []documentSignal {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]documentSignal(nil), sink.documents...)
}
