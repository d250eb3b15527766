// Package badgerstore implements pkg/store.I on top of BadgerDB, generalizing
// the teacher's pkg/database.D (dgraph-io/badger/v4, scoped key layout, and
// sequence-leased serials) to the plain scope-prefixed event store this core
// needs, encoding values with vmihailenco/msgpack/v5 in place of the
// teacher's hand-rolled binary codec (see DESIGN.md).
package badgerstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"orly.dev/relaycore/internal/chk"
	"orly.dev/relaycore/internal/context"
	"orly.dev/relaycore/internal/logx"
	"orly.dev/relaycore/pkg/nostrcore/event"
	"orly.dev/relaycore/pkg/nostrcore/filter"
	"orly.dev/relaycore/pkg/nostrcore/scope"
)

var log = logx.Component("badgerstore")

const (
	eventPrefix = "ev:"
	idPrefix    = "id:"
)

// D is a BadgerDB-backed store.I.
type D struct {
	db *badger.DB
}

// Open opens (creating if absent) a badger database rooted at dataDir.
func Open(dataDir string) (d *D, err error) {
	if err = os.MkdirAll(dataDir, 0755); chk.E(err) {
		return nil, err
	}
	opts := badger.DefaultOptions(dataDir).WithLogger(badgerLogAdapter{})
	var db *badger.DB
	if db, err = badger.Open(opts); chk.E(err) {
		return nil, err
	}
	return &D{db: db}, nil
}

// Close releases the underlying badger handle.
func (d *D) Close() error { return d.db.Close() }

// invertedTimestamp maps a created_at so that ascending byte order over the
// result equals descending created_at order, letting a forward badger
// iterator yield newest-first without a reverse scan.
func invertedTimestamp(createdAt int64) uint64 {
	return uint64(math.MaxInt64 - createdAt)
}

func eventKey(s scope.T, createdAt int64, id string) []byte {
	key := make([]byte, 0, len(eventPrefix)+len(s.String())+1+8+1+len(id))
	key = append(key, eventPrefix...)
	key = append(key, s.String()...)
	key = append(key, 0)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], invertedTimestamp(createdAt))
	key = append(key, ts[:]...)
	key = append(key, 0)
	key = append(key, id...)
	return key
}

func eventPrefixForScope(s scope.T) []byte {
	return []byte(eventPrefix + s.String() + "\x00")
}

func idKey(s scope.T, id string) []byte {
	return []byte(idPrefix + s.String() + "\x00" + id)
}

// Save persists ev in scope s. Idempotent on repeated saves of the same ID
// (spec §8): the second save overwrites the same key with the same value
// rather than creating a duplicate.
func (d *D) Save(ctx context.T, ev *event.E, s scope.T) (err error) {
	val, err := msgpack.Marshal(ev)
	if chk.E(err) {
		return err
	}
	primary := eventKey(s, ev.CreatedAt, ev.ID)
	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, val); err != nil {
			return err
		}
		return txn.Set(idKey(s, ev.ID), primary)
	})
}

// Query returns every event in scope s matching f, newest-first, capped at
// f.Limit if set (spec §3/§6/§8 invariant 3 and "no-limit caps at max_limit"
// — the latter is the coordinator's responsibility, not the store's; this
// layer honors whatever Limit it is given).
func (d *D) Query(ctx context.T, f *filter.F, s scope.T) (out event.S, err error) {
	prefix := eventPrefixForScope(s)
	err = d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		var count uint
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var ev event.E
			if viewErr := item.Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &ev)
			}); viewErr != nil {
				log.Warn().Err(viewErr).Msg("corrupt event record, skipping")
				continue
			}
			if !f.Matches(&ev) {
				continue
			}
			cp := ev
			out = append(out, &cp)
			count++
			if f.Limit != nil && count >= *f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Delete removes every event in scope s matching f.
func (d *D) Delete(ctx context.T, f *filter.F, s scope.T) error {
	prefix := eventPrefixForScope(s)
	var toDelete [][]byte
	var ids []string
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			var ev event.E
			if viewErr := item.Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &ev)
			}); viewErr != nil {
				continue
			}
			if !f.Matches(&ev) {
				continue
			}
			toDelete = append(toDelete, key)
			ids = append(ids, ev.ID)
		}
		return nil
	})
	if chk.E(err) {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		for i, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(idKey(s, ids[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// badgerLogAdapter routes badger's internal logging through the shared
// zerolog component logger instead of badger's default stdlib logger.
type badgerLogAdapter struct{}

func (badgerLogAdapter) Errorf(f string, a ...interface{})   { log.Error().Msg(fmt.Sprintf(f, a...)) }
func (badgerLogAdapter) Warningf(f string, a ...interface{}) { log.Warn().Msg(fmt.Sprintf(f, a...)) }
func (badgerLogAdapter) Infof(f string, a ...interface{})    { log.Info().Msg(fmt.Sprintf(f, a...)) }
func (badgerLogAdapter) Debugf(f string, a ...interface{})   { log.Debug().Msg(fmt.Sprintf(f, a...)) }
