package habit

import (
	"fmt"
	"maps"
	"strconv"
)

// Completion maps a day of month to its completion flag. Absent days are not completed.
type Completion map[int]bool

type Habit struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Completion Completion `json:"completion"`
}

// Snapshot is the full, ordered contents of a user's habit collection.
type Snapshot []Habit

func (c Completion) Done(day int) bool {
	return c[day]
}

// Toggled returns a copy of c with day flipped. c is left untouched.
func (c Completion) Toggled(day int) Completion {
	next := make(Completion, len(c)+1)
	maps.Copy(next, c)
	next[day] = !c[day]
	return next
}

// Clone returns an independent copy of the habit.
func (h Habit) Clone() Habit {
	h.Completion = maps.Clone(h.Completion)
	return h
}

// Find returns the habit with the given id.
func (s Snapshot) Find(id string) (Habit, bool) {
	for _, h := range s {
		if h.ID == id {
			return h, true
		}
	}
	return Habit{}, false
}

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, h := range s {
		out[i] = h.Clone()
	}
	return out
}

// ToDocument converts the completion map to the string keyed form document stores use.
func (c Completion) ToDocument() map[string]bool {
	doc := make(map[string]bool, len(c))
	for day, done := range c {
		doc[strconv.Itoa(day)] = done
	}
	return doc
}

// CompletionFromDocument parses a string keyed completion map. Values that are not
// booleans count as not completed.
func CompletionFromDocument(doc map[string]any) (Completion, error) {
	c := make(Completion, len(doc))
	for key, raw := range doc {
		day, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid completion key %q: %w", key, err)
		}
		done, _ := raw.(bool)
		c[day] = done
	}
	return c, nil
}
