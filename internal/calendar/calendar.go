package calendar

import (
	"fmt"

	"github.com/google/btree"

	"topicbot/internal/storage"
)

// Calendar is the in-memory date -> events mapping.
//
// Lookups go through the map; ordered iteration goes through a btree of the
// keys, so inserting a new date costs O(log n) instead of a full re-sort.
// Calendar is not safe for concurrent use; Store serialises access.
type Calendar struct {
	events map[Date][]string
	index  *btree.BTreeG[Date]
}

func lessDate(a, b Date) bool { return a.Before(b) }

// New returns an empty calendar.
func New() *Calendar {
	return &Calendar{
		events: map[Date][]string{},
		index:  btree.NewG[Date](16, lessDate),
	}
}

// FromSnapshot builds a calendar from persisted data. Every key must parse as
// a Date; the first one that does not fails the whole load.
func FromSnapshot(snap storage.Snapshot) (*Calendar, error) {
	c := New()
	for key, events := range snap {
		d, err := ParseDate(key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q", ErrLoadCorruption, key)
		}
		c.events[d] = append([]string(nil), events...)
		c.index.ReplaceOrInsert(d)
	}
	return c, nil
}

// Len returns the number of date keys, including keys with an empty list.
func (c *Calendar) Len() int { return c.index.Len() }

// Has reports whether event is already listed under d.
func (c *Calendar) Has(d Date, event string) bool {
	for _, e := range c.events[d] {
		if e == event {
			return true
		}
	}
	return false
}

// Append adds event under d. It returns false, and changes nothing, when the
// exact text is already listed for that date.
func (c *Calendar) Append(d Date, event string) bool {
	if c.Has(d, event) {
		return false
	}
	if _, ok := c.events[d]; !ok {
		c.index.ReplaceOrInsert(d)
	}
	c.events[d] = append(c.events[d], event)
	return true
}

// undoAppend reverts the last successful Append(d, event).
func (c *Calendar) undoAppend(d Date) {
	list := c.events[d]
	if len(list) <= 1 {
		delete(c.events, d)
		c.index.Delete(d)
		return
	}
	c.events[d] = list[:len(list)-1]
}

// Events returns a copy of the events listed under d, or nil.
func (c *Calendar) Events(d Date) []string {
	list := c.events[d]
	if len(list) == 0 {
		return nil
	}
	return append([]string(nil), list...)
}

// Ascend calls fn for each date in ascending order until fn returns false.
// The slice passed to fn must not be retained or modified.
func (c *Calendar) Ascend(fn func(d Date, events []string) bool) {
	c.index.Ascend(func(d Date) bool {
		return fn(d, c.events[d])
	})
}

// Dates returns all keys in ascending order.
func (c *Calendar) Dates() []Date {
	out := make([]Date, 0, c.index.Len())
	c.index.Ascend(func(d Date) bool {
		out = append(out, d)
		return true
	})
	return out
}

// DeleteBefore removes every date strictly before cutoff and returns what was
// removed, so the caller can restore it.
func (c *Calendar) DeleteBefore(cutoff Date) map[Date][]string {
	var stale []Date
	c.index.AscendLessThan(cutoff, func(d Date) bool {
		stale = append(stale, d)
		return true
	})
	removed := make(map[Date][]string, len(stale))
	for _, d := range stale {
		removed[d] = c.events[d]
		delete(c.events, d)
		c.index.Delete(d)
	}
	return removed
}

func (c *Calendar) restore(removed map[Date][]string) {
	for d, list := range removed {
		c.events[d] = list
		c.index.ReplaceOrInsert(d)
	}
}

// Snapshot returns the persisted form. Dates with no events are omitted.
func (c *Calendar) Snapshot() storage.Snapshot {
	snap := make(storage.Snapshot, len(c.events))
	for d, list := range c.events {
		if len(list) == 0 {
			continue
		}
		snap[d.String()] = append([]string(nil), list...)
	}
	return snap
}
