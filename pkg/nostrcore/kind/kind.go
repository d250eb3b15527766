// Package kind classifies Nostr event kinds, generalizing the predicate the
// teacher exposes as ev.Kind.IsPrivileged() (see
// pkg/protocol/socketapi/handleReq.go) to the replaceable/addressable
// classification this core's buffer and coordinator depend on (spec
// §3/§4.4/GLOSSARY).
package kind

// T is a Nostr event kind number.
type T int

// Regular-range boundaries per NIP-01: kinds in [1000,10000) and
// [4,45) (outside the special single-kind exceptions below) are regular;
// [10000,20000) are replaceable; [20000,30000) are ephemeral;
// [30000,40000) are addressable. Kinds 0 and 3 are also replaceable by
// long-standing convention.
const (
	replaceableRangeStart = 10000
	replaceableRangeEnd   = 20000
	ephemeralRangeStart   = 20000
	ephemeralRangeEnd     = 30000
	addressableRangeStart = 30000
	addressableRangeEnd   = 40000
)

// IsReplaceable reports whether only the newest event per (author, kind,
// scope) is semantically live for this kind.
func (k T) IsReplaceable() bool {
	if k == 0 || k == 3 {
		return true
	}
	return int(k) >= replaceableRangeStart && int(k) < replaceableRangeEnd
}

// IsAddressable reports whether only the newest event per (author, kind,
// "d" tag, scope) is semantically live for this kind.
func (k T) IsAddressable() bool {
	return int(k) >= addressableRangeStart && int(k) < addressableRangeEnd
}

// IsEphemeral reports whether events of this kind are never persisted.
func (k T) IsEphemeral() bool {
	return int(k) >= ephemeralRangeStart && int(k) < ephemeralRangeEnd
}

// IsReplaceableOrAddressable is the predicate the Replaceable-Event Buffer
// (spec §4.4) uses to decide whether an event belongs in the coalescing
// queue at all.
func (k T) IsReplaceableOrAddressable() bool {
	return k.IsReplaceable() || k.IsAddressable()
}
