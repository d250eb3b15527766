// Package envelope implements the outbound/inbound wire message types and
// the Message Converter boundary contract (spec §6), generalizing the
// Label()/NewXxx/Marshal/Unmarshal/Write(io.Writer) shape of the teacher's
// encoders/envelopes/authenvelope package (the one envelope file present in
// the retrieved pack) to the verb set this core needs, over encoding/json
// rather than the teacher's hand-rolled byte scanner (see DESIGN.md).
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/relayerr"
)

var log = logx.Component("envelope")

// --- Outbound (relay -> client) ---

// EventMsg is the ["EVENT", subID, event] outbound message.
type EventMsg struct {
	SubID string
	Event *event.E
}

func (m *EventMsg) Label() string { return "EVENT" }

func (m *EventMsg) Marshal() ([]byte, error) {
	return json.Marshal([]any{"EVENT", m.SubID, m.Event})
}

func (m *EventMsg) Write(w io.Writer) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// OKMsg is the ["OK", eventID, ok, reason] outbound message.
type OKMsg struct {
	EventID string
	OK      bool
	Reason  string
}

func (m *OKMsg) Label() string { return "OK" }

func (m *OKMsg) Marshal() ([]byte, error) {
	return json.Marshal([]any{"OK", m.EventID, m.OK, m.Reason})
}

func (m *OKMsg) Write(w io.Writer) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EOSEMsg is the ["EOSE", subID] outbound message marking the end of
// historical delivery for a subscription (spec §4.5/GLOSSARY).
type EOSEMsg struct {
	SubID string
}

func (m *EOSEMsg) Label() string { return "EOSE" }

func (m *EOSEMsg) Marshal() ([]byte, error) {
	return json.Marshal([]any{"EOSE", m.SubID})
}

func (m *EOSEMsg) Write(w io.Writer) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// NoticeMsg is the ["NOTICE", reason] outbound message.
type NoticeMsg struct {
	Reason string
}

func (m *NoticeMsg) Label() string { return "NOTICE" }

func (m *NoticeMsg) Marshal() ([]byte, error) {
	return json.Marshal([]any{"NOTICE", m.Reason})
}

func (m *NoticeMsg) Write(w io.Writer) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// RelayMessage is any outbound envelope type.
type RelayMessage interface {
	Label() string
	Marshal() ([]byte, error)
	Write(w io.Writer) error
}

// Serialize renders any RelayMessage to its canonical JSON form (spec §6).
func Serialize(m RelayMessage) (string, error) {
	b, err := m.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// --- Inbound (client -> relay) ---

// ClientMessage is any parsed inbound command.
type ClientMessage interface {
	Verb() string
}

// EventCmd is a ["EVENT", event] inbound command: publish a signed event.
type EventCmd struct {
	Event *event.E
}

func (c *EventCmd) Verb() string { return "EVENT" }

// ReqCmd is a ["REQ", subID, filter...] inbound command: open a
// historical+live subscription.
type ReqCmd struct {
	SubID   string
	Filters []*filter.F
}

func (c *ReqCmd) Verb() string { return "REQ" }

// CloseCmd is a ["CLOSE", subID] inbound command.
type CloseCmd struct {
	SubID string
}

func (c *CloseCmd) Verb() string { return "CLOSE" }

// AuthCmd is an ["AUTH", event] inbound command. The core passes this
// through to an auth collaborator unspecified here (spec §6).
type AuthCmd struct {
	Event *event.E
}

func (c *AuthCmd) Verb() string { return "AUTH" }

// Parse implements the Message Converter contract (spec §6): empty input
// yields (nil, nil); invalid UTF-8 yields (nil, nil) after logging a
// warning; parse failure (including unknown verbs) yields a relayerr.Parse
// error.
func Parse(b []byte) (ClientMessage, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if !utf8.Valid(b) {
		log.Warn().Int("bytes", len(b)).Msg("ignoring inbound message that is not valid UTF-8")
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, relayerr.Parse(err)
	}
	if len(raw) == 0 {
		return nil, relayerr.Parse(errors.New("empty envelope array"))
	}
	var verb string
	if err := json.Unmarshal(raw[0], &verb); err != nil {
		return nil, relayerr.Parse(err)
	}

	switch verb {
	case "EVENT":
		if len(raw) < 2 {
			return nil, relayerr.Parse(errors.New("EVENT missing event payload"))
		}
		ev := &event.E{}
		if err := json.Unmarshal(raw[1], ev); err != nil {
			return nil, relayerr.Parse(err)
		}
		return &EventCmd{Event: ev}, nil
	case "REQ":
		if len(raw) < 2 {
			return nil, relayerr.Parse(errors.New("REQ missing subscription id"))
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, relayerr.Parse(err)
		}
		filters := make([]*filter.F, 0, len(raw)-2)
		for _, fr := range raw[2:] {
			f := &filter.F{}
			if err := json.Unmarshal(fr, f); err != nil {
				return nil, relayerr.Parse(err)
			}
			filters = append(filters, f)
		}
		return &ReqCmd{SubID: subID, Filters: filters}, nil
	case "CLOSE":
		if len(raw) < 2 {
			return nil, relayerr.Parse(errors.New("CLOSE missing subscription id"))
		}
		var subID string
		if err := json.Unmarshal(raw[1], &subID); err != nil {
			return nil, relayerr.Parse(err)
		}
		return &CloseCmd{SubID: subID}, nil
	case "AUTH":
		if len(raw) < 2 {
			return nil, relayerr.Parse(errors.New("AUTH missing event payload"))
		}
		ev := &event.E{}
		if err := json.Unmarshal(raw[1], ev); err != nil {
			return nil, relayerr.Parse(err)
		}
		return &AuthCmd{Event: ev}, nil
	default:
		return nil, relayerr.Parse(fmt.Errorf("unknown verb %q", verb))
	}
}
