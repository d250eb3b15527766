// Package event provides the Event/UnsignedEvent data model (spec §3),
// generalizing the teacher's event.E (event/event.go) to plain Go types
// suitable for encoding/json, since the teacher's binary tag/timestamp/kind
// codec was not present in the retrieved pack beyond its call sites.
package event

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"orly.dev/relaycore/pkg/nostrcore/kind"
)

// Tag is a single Nostr tag: a list of strings, conventionally
// [name, value, ...extra].
type Tag []string

// Key returns the tag's name (first element), or "" if empty.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the tag's primary value (second element), or "" if absent.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is an ordered list of Tag.
type Tags []Tag

// GetAll returns every tag whose key matches name.
func (ts Tags) GetAll(name string) (out Tags) {
	for _, t := range ts {
		if t.Key() == name {
			out = append(out, t)
		}
	}
	return
}

// GetD returns the value of the first "d" tag, or "" if absent. Used to key
// addressable (parameterized-replaceable) events.
func (ts Tags) GetD() string {
	for _, t := range ts {
		if t.Key() == "d" {
			return t.Value()
		}
	}
	return ""
}

// UnsignedEvent is an Event before it has passed through the Signer: same
// shape minus ID and Sig (spec §3).
type UnsignedEvent struct {
	Author    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      kind.T `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
}

// CanonicalBytes renders the NIP-01 canonical serialization used to derive
// an event's ID: [0, pubkey, created_at, kind, tags, content].
func (u *UnsignedEvent) CanonicalBytes() []byte {
	tags := u.Tags
	if tags == nil {
		tags = Tags{}
	}
	arr := []any{0, u.Author, u.CreatedAt, int(u.Kind), tags, u.Content}
	b, _ := json.Marshal(arr)
	return b
}

// IDBytes computes the raw 32-byte event ID digest this event would have
// once signed.
func (u *UnsignedEvent) IDBytes() []byte {
	h := sha256.Sum256(u.CanonicalBytes())
	return h[:]
}

// ID computes the event ID (sha256 of the canonical serialization) this
// event would have once signed.
func (u *UnsignedEvent) ID() string {
	return fmt.Sprintf("%x", u.IDBytes())
}

// E is the primary datatype of the protocol: an immutable, signed event
// (spec §3). Treated as immutable once constructed — callers must not
// mutate an *E after it has been distributed or persisted.
type E struct {
	ID        string `json:"id"`
	Author    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      kind.T `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// S is a slice of events that sorts newest-first by CreatedAt, matching the
// Store interface's documented ordering (spec §3/§6).
type S []*E

func (s S) Len() int      { return len(s) }
func (s S) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s S) Less(i, j int) bool {
	return s[i].CreatedAt > s[j].CreatedAt
}

// SortNewestFirst sorts s in place, newest CreatedAt first.
func SortNewestFirst(s S) { sort.Sort(s) }

// C is a channel carrying *E, the idiom used for the outbound and signer
// pipelines.
type C chan *E

// Unsigned returns the UnsignedEvent this signed event was built from.
func (e *E) Unsigned() *UnsignedEvent {
	return &UnsignedEvent{
		Author:    e.Author,
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
	}
}

// Marshal renders e as minified JSON.
func (e *E) Marshal() ([]byte, error) { return json.Marshal(e) }

// Unmarshal decodes b (minified JSON) into e.
func (e *E) Unmarshal(b []byte) error { return json.Unmarshal(b, e) }
