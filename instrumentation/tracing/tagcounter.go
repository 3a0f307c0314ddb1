package tracing

import (
	"sync"

	"github.com/sarchlab/grengine/instrumentation/hooking"
)

// TagFunc names the tag a hook event is counted under. An empty tag skips
// the event.
type TagFunc func(ctx hooking.HookCtx) string

// ByPos tags every event with the name of its hook position.
func ByPos(ctx hooking.HookCtx) string {
	if ctx.Pos == nil {
		return ""
	}

	return ctx.Pos.Name
}

// TagCounter can collect how often a certain tag is triggered.
type TagCounter struct {
	lock     sync.Mutex
	tagOf    TagFunc
	tagNames []string
	tagCount map[string]uint64
}

// NewTagCounter creates a new TagCounter.
func NewTagCounter(tagOf TagFunc) *TagCounter {
	return &TagCounter{
		tagOf:    tagOf,
		tagCount: make(map[string]uint64),
	}
}

// Func counts the event under its tag.
func (t *TagCounter) Func(ctx hooking.HookCtx) {
	tag := t.tagOf(ctx)
	if tag == "" {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.tagCount[tag]; !ok {
		t.tagNames = append(t.tagNames, tag)
	}

	t.tagCount[tag]++
}

// GetTagNames returns the tags seen, in the order they first appeared.
func (t *TagCounter) GetTagNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.tagNames...)
}

// GetTagCount returns how many events carried tagName.
func (t *TagCounter) GetTagCount(tagName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.tagCount[tagName]
}

// Total returns the number of events counted.
func (t *TagCounter) Total() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	var n uint64
	for _, c := range t.tagCount {
		n += c
	}

	return n
}

// Reset forgets every count.
func (t *TagCounter) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tagNames = nil
	t.tagCount = make(map[string]uint64)
}
