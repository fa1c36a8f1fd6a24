package model

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"sort"
	"strings"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank orders priorities; higher is more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ParsePriority accepts the names in any case.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}

type Tag uint8

const (
	TagWork Tag = 1 << iota
	TagPersonal
	TagUrgent
	TagOther
)

// AllTags lists the tags in display order.
var AllTags = []Tag{TagWork, TagPersonal, TagUrgent, TagOther}

func (t Tag) String() string {
	switch t {
	case TagWork:
		return "WORK"
	case TagPersonal:
		return "PERSONAL"
	case TagUrgent:
		return "URGENT"
	case TagOther:
		return "OTHER"
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

func ParseTag(s string) (Tag, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, t := range AllTags {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tag %q", s)
}

// TagSet is a set of tags stored as a bit mask.
type TagSet uint8

func NewTagSet(tags ...Tag) TagSet {
	var s TagSet
	for _, t := range tags {
		s = s.With(t)
	}
	return s
}

func (s TagSet) Has(t Tag) bool           { return s&TagSet(t) != 0 }
func (s TagSet) With(t Tag) TagSet        { return s | TagSet(t) }
func (s TagSet) Without(t Tag) TagSet     { return s &^ TagSet(t) }
func (s TagSet) Intersects(o TagSet) bool { return s&o != 0 }
func (s TagSet) Empty() bool              { return s == 0 }
func (s TagSet) Len() int                 { return bits.OnesCount8(uint8(s)) }

// Toggle adds t if missing and removes it otherwise.
func (s TagSet) Toggle(t Tag) TagSet {
	if s.Has(t) {
		return s.Without(t)
	}
	return s.With(t)
}

func (s TagSet) Tags() []Tag {
	var out []Tag
	for _, t := range AllTags {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s TagSet) Names() []string {
	names := make([]string, 0, s.Len())
	for _, t := range s.Tags() {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return names
}

// String encodes the set as comma-joined names, the storage form.
func (s TagSet) String() string {
	return strings.Join(s.Names(), ",")
}

// ParseTags decodes comma-joined tag names. Duplicates collapse.
func ParseTags(s string) (TagSet, error) {
	var set TagSet
	if strings.TrimSpace(s) == "" {
		return set, nil
	}
	for _, part := range strings.Split(s, ",") {
		t, err := ParseTag(part)
		if err != nil {
			return 0, err
		}
		set = set.With(t)
	}
	return set, nil
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *TagSet) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("tags must be a list of names: %w", err)
	}
	var set TagSet
	for _, n := range names {
		t, err := ParseTag(n)
		if err != nil {
			return err
		}
		set = set.With(t)
	}
	*s = set
	return nil
}
