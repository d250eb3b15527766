// Package filter implements the protocol filter predicate (spec §3),
// generalizing the match-chain shape of the teacher's
// encoders/filter/filter.go F.Matches over plain Go types instead of the
// teacher's binary tag/kinds containers.
package filter

import (
	"encoding/json"

	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/kind"
)

// F is a protocol filter: a predicate over events with optional time/count
// bounds and set constraints.
type F struct {
	IDs     []string
	Kinds   []kind.T
	Authors []string
	Tags    map[string][]string // e.g. "#e" -> [...], "#p" -> [...]
	Since   *int64
	Until   *int64
	Limit   *uint
}

// MarshalJSON renders F in its flat wire shape: the known fields plus whatever
// "#x"-prefixed tag-filter keys are present, which json.Marshal cannot
// express as a single Go struct field (NIP-01's filter JSON has no fixed
// key for tag constraints — they're siblings of ids/kinds/authors at the
// top level, one pair per tag name).
func (f *F) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 4+len(f.Tags))
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit != nil {
		m["limit"] = *f.Limit
	}
	for k, v := range f.Tags {
		m[k] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses the flat NIP-01 filter object, routing any
// "#x"-prefixed key into Tags and leaving the known fields typed.
func (f *F) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		switch k {
		case "ids":
			if err := json.Unmarshal(v, &f.IDs); err != nil {
				return err
			}
		case "kinds":
			if err := json.Unmarshal(v, &f.Kinds); err != nil {
				return err
			}
		case "authors":
			if err := json.Unmarshal(v, &f.Authors); err != nil {
				return err
			}
		case "since":
			var ts int64
			if err := json.Unmarshal(v, &ts); err != nil {
				return err
			}
			f.Since = &ts
		case "until":
			var ts int64
			if err := json.Unmarshal(v, &ts); err != nil {
				return err
			}
			f.Until = &ts
		case "limit":
			var lim uint
			if err := json.Unmarshal(v, &lim); err != nil {
				return err
			}
			f.Limit = &lim
		default:
			if len(k) < 2 || k[0] != '#' {
				continue
			}
			var values []string
			if err := json.Unmarshal(v, &values); err != nil {
				return err
			}
			if f.Tags == nil {
				f.Tags = make(map[string][]string)
			}
			f.Tags[k] = values
		}
	}
	return nil
}

// Clone returns a deep copy of f. Limit capping (spec §4.5) mutates a
// filter's Limit/Until in place during pagination, so the coordinator
// always works from a clone of the caller's original filter.
func (f *F) Clone() *F {
	clone := &F{}
	clone.IDs = append([]string(nil), f.IDs...)
	clone.Kinds = append([]kind.T(nil), f.Kinds...)
	clone.Authors = append([]string(nil), f.Authors...)
	if f.Tags != nil {
		clone.Tags = make(map[string][]string, len(f.Tags))
		for k, v := range f.Tags {
			clone.Tags[k] = append([]string(nil), v...)
		}
	}
	if f.Since != nil {
		v := *f.Since
		clone.Since = &v
	}
	if f.Until != nil {
		v := *f.Until
		clone.Until = &v
	}
	if f.Limit != nil {
		v := *f.Limit
		clone.Limit = &v
	}
	return clone
}

func containsStr(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

func containsKind(hay []kind.T, needle kind.T) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

// Matches reports whether ev satisfies f. Total and pure, as required by
// spec §3.
func (f *F) Matches(ev *event.E) bool {
	if ev == nil {
		return false
	}
	if len(f.IDs) > 0 && !containsStr(f.IDs, ev.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, ev.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsStr(f.Authors, ev.Author) {
		return false
	}
	if len(f.Tags) > 0 && !tagsIntersect(f.Tags, ev.Tags) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// tagsIntersect reports whether ev's tags satisfy every tag-filter
// constraint in want (e.g. want["#e"] must intersect the event's "e" tags).
func tagsIntersect(want map[string][]string, have event.Tags) bool {
	for filterKey, values := range want {
		if len(filterKey) < 2 || filterKey[0] != '#' {
			continue
		}
		tagName := filterKey[1:]
		matched := false
	search:
		for _, t := range have {
			if t.Key() != tagName {
				continue
			}
			for _, v := range t[1:] {
				if containsStr(values, v) {
					matched = true
					break search
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
