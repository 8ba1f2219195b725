// Bounded ring buffer of message arrival times, used for sliding-window rate detection.
package window

import (
	"math"
	"time"
)

var (
	minTime = time.Unix(0, math.MinInt64)
	maxTime = time.Unix(0, math.MaxInt64)
)

// Reports whether t can be recorded without loss, roughly years 1678 to 2262.
func Representable(t time.Time) bool {
	return !t.Before(minTime) && !t.After(maxTime)
}

// Window holds the most recent arrival timestamps for a single sender, oldest first.
//
// Appending to a full window overwrites the oldest entry, so memory stays bounded by the capacity. Storage grows on
// demand up to the capacity. Timestamps are kept in non-decreasing order: an arrival earlier than the newest entry is
// recorded at the newest entry's time.
//
// Not safe for concurrent use; callers hold the owning ledger entry's lock.
type Window struct {
	buf   []int64 // unix nanoseconds
	head  int     // index of oldest entry
	size  int
	limit int

	lastContent string
}

const initialSlots = 8

func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{limit: capacity}
}

func (w *Window) Len() int {
	return w.size
}

// Maximum number of entries held.
func (w *Window) Cap() int {
	return w.limit
}

func (w *Window) at(i int) int64 {
	return w.buf[(w.head+i)%len(w.buf)]
}

// Copies the entries into a fresh buffer of n slots, keeping the newest ones that fit.
func (w *Window) realloc(n int) {
	keep := w.size
	if keep > n {
		keep = n
	}
	buf := make([]int64, n)
	for i := 0; i < keep; i++ {
		buf[i] = w.at(w.size - keep + i)
	}
	w.buf = buf
	w.head = 0
	w.size = keep
}

// Drops every entry at or before cutoff. Entries strictly after cutoff are kept. Runs in time proportional to the
// number of entries dropped.
func (w *Window) Prune(cutoff time.Time) int {
	c := cutoff.UnixNano()
	dropped := 0
	for w.size > 0 && w.buf[w.head] <= c {
		w.head = (w.head + 1) % len(w.buf)
		w.size--
		dropped++
	}
	if w.size == 0 {
		w.head = 0
	}
	return dropped
}

// Appends an arrival time, evicting the oldest entry if the window is full.
func (w *Window) Push(t time.Time) {
	ts := t.UnixNano()
	if w.size > 0 {
		if newest := w.at(w.size - 1); ts < newest {
			ts = newest
		}
	}
	if w.size == w.limit {
		w.buf[w.head] = ts
		w.head = (w.head + 1) % len(w.buf)
		return
	}
	if w.size == len(w.buf) {
		n := 2 * len(w.buf)
		if n < initialSlots {
			n = initialSlots
		}
		if n > w.limit {
			n = w.limit
		}
		w.realloc(n)
	}
	w.buf[(w.head+w.size)%len(w.buf)] = ts
	w.size++
}

// Newest entry, or false if the window is empty.
func (w *Window) Newest() (time.Time, bool) {
	if w.size == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, w.at(w.size-1)), true
}

// Oldest entry, or false if the window is empty.
func (w *Window) Oldest() (time.Time, bool) {
	if w.size == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, w.buf[w.head]), true
}

// Changes capacity, keeping the newest entries which still fit.
func (w *Window) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == w.limit {
		return
	}
	w.limit = capacity
	if len(w.buf) > capacity {
		w.realloc(capacity)
	}
}

// Copy of the current entries, oldest first.
func (w *Window) Times() []time.Time {
	out := make([]time.Time, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = time.Unix(0, w.at(i))
	}
	return out
}

// Content of the previous message recorded with SetLastContent.
func (w *Window) LastContent() string {
	return w.lastContent
}

func (w *Window) SetLastContent(s string) {
	w.lastContent = s
}

// Empties the window.
func (w *Window) Reset() {
	w.head = 0
	w.size = 0
	w.lastContent = ""
}
