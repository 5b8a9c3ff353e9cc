package log

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Entry struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Ring is a logrus hook keeping the most recent entries in memory.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 500
	}
	return &Ring{entries: make([]Entry, size)}
}

func (r *Ring) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (r *Ring) Fire(e *logrus.Entry) error {
	var fields map[string]interface{}
	if len(e.Data) > 0 {
		fields = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			fields[k] = v
		}
	}

	r.mu.Lock()
	r.entries[r.next] = Entry{
		Time:    e.Time,
		Level:   e.Level.String(),
		Message: e.Message,
		Fields:  fields,
	}
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// Snapshot returns up to limit entries at or above level, oldest first.
func (r *Ring) Snapshot(limit int, level logrus.Level) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := make([]Entry, 0, len(r.entries))
	if r.full {
		ordered = append(ordered, r.entries[r.next:]...)
	}
	ordered = append(ordered, r.entries[:r.next]...)

	out := make([]Entry, 0, len(ordered))
	for _, e := range ordered {
		lvl, err := logrus.ParseLevel(e.Level)
		if err != nil || lvl > level {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Recent reads from the process log ring.
func Recent(limit int, level logrus.Level) []Entry {
	return recent.Snapshot(limit, level)
}
