// Package worklog records what a sync run changed, in order. A worklog is
// created by each top-level sync call and handed back to the caller.
package worklog

import (
	"fmt"
	"time"
)

// Action is what happened to a subject.
type Action string

const (
	// TagsRegistered marks tag definitions created in the catalog.
	TagsRegistered Action = "registered"
	// TagsAdded marks tags attached to an entity.
	TagsAdded Action = "added tag"
	// TagsDeleted marks tags detached from an entity.
	TagsDeleted Action = "deleted tag"
	// NotInSource marks catalog entities absent from the tag file.
	NotInSource Action = "not in source"
	// Skipped marks desired entries that could not be applied.
	Skipped Action = "skipped"
)

// Entry is one logged outcome. Subject is an entity name, or for batch
// findings a sentence describing the batch.
type Entry struct {
	Run     int       `json:"run" yaml:"run"`
	Subject string    `json:"subject" yaml:"subject"`
	Action  Action    `json:"action" yaml:"action"`
	Items   []string  `json:"items" yaml:"items"`
	At      time.Time `json:"at" yaml:"at"`
}

// Key renders the entry the way it is reported, for example
// "run:1 s.t added tag".
func (e Entry) Key() string {
	switch e.Action {
	case TagsAdded, TagsDeleted, Skipped:
		return fmt.Sprintf("run:%d %s %s", e.Run, e.Subject, e.Action)
	default:
		return fmt.Sprintf("run:%d %s", e.Run, e.Subject)
	}
}

// Worklog is an ordered list of entries.
type Worklog struct {
	entries []Entry
	now     func() time.Time
}

// New returns an empty worklog.
func New() *Worklog {
	return &Worklog{now: time.Now}
}

// Add appends an entry. Empty item lists are logged too, callers decide
// whether an empty change is worth recording.
func (w *Worklog) Add(run int, subject string, action Action, items []string) {
	w.entries = append(w.entries, Entry{
		Run:     run,
		Subject: subject,
		Action:  action,
		Items:   items,
		At:      w.now(),
	})
}

// Entries returns the entries in insertion order.
func (w *Worklog) Entries() []Entry {
	if w == nil {
		return nil
	}
	return w.entries
}

// Len returns the number of entries.
func (w *Worklog) Len() int {
	if w == nil {
		return 0
	}
	return len(w.entries)
}

// Get returns the items of the last entry with the given key.
func (w *Worklog) Get(key string) ([]string, bool) {
	for i := len(w.Entries()) - 1; i >= 0; i-- {
		if w.entries[i].Key() == key {
			return w.entries[i].Items, true
		}
	}
	return nil, false
}

// Map returns key to items. Later entries win on duplicate keys.
func (w *Worklog) Map() map[string][]string {
	out := make(map[string][]string, w.Len())
	for _, e := range w.Entries() {
		out[e.Key()] = e.Items
	}
	return out
}

// Count returns the number of entries with the given action.
func (w *Worklog) Count(action Action) int {
	n := 0
	for _, e := range w.Entries() {
		if e.Action == action {
			n++
		}
	}
	return n
}

// Append copies the entries of other to the end of w.
func (w *Worklog) Append(other *Worklog) {
	w.entries = append(w.entries, other.Entries()...)
}
