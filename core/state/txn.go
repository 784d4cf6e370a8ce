package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"lendledger/storage"
)

// ErrTxnClosed is returned when a committed or discarded transaction is used.
var ErrTxnClosed = errors.New("state: transaction closed")

// Txn is a Manager whose writes are buffered until Commit. A discarded
// transaction leaves the database untouched.
type Txn struct {
	*Manager
	overlay *overlay
}

// Commit flushes the buffered writes to the database in a single batch.
func (t *Txn) Commit() error {
	if t == nil || t.overlay == nil {
		return ErrTxnClosed
	}
	return t.overlay.flush()
}

// Discard drops every buffered write.
func (t *Txn) Discard() {
	if t == nil || t.overlay == nil {
		return
	}
	t.overlay.close()
}

// Pending reports the number of buffered key writes.
func (t *Txn) Pending() int {
	if t == nil || t.overlay == nil {
		return 0
	}
	return len(t.overlay.writes)
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

type overlay struct {
	base   storage.Database
	writes map[string]pendingWrite
	closed bool
}

func newOverlay(base storage.Database) *overlay {
	return &overlay{base: base, writes: make(map[string]pendingWrite)}
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	if o.closed {
		return nil, ErrTxnClosed
	}
	if w, ok := o.writes[string(key)]; ok {
		if w.deleted {
			return nil, storage.ErrNotFound
		}
		return append([]byte(nil), w.value...), nil
	}
	return o.base.Get(key)
}

func (o *overlay) Put(key []byte, value []byte) error {
	if o.closed {
		return ErrTxnClosed
	}
	o.writes[string(key)] = pendingWrite{value: append([]byte(nil), value...)}
	return nil
}

func (o *overlay) Delete(key []byte) error {
	if o.closed {
		return ErrTxnClosed
	}
	o.writes[string(key)] = pendingWrite{deleted: true}
	return nil
}

// Iterate merges the committed entries under prefix with the pending writes
// and visits the result in ascending key order.
func (o *overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	if o.closed {
		return ErrTxnClosed
	}
	merged := make(map[string][]byte)
	if err := o.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	for key, w := range o.writes {
		if !bytes.HasPrefix([]byte(key), prefix) {
			continue
		}
		if w.deleted {
			delete(merged, key)
			continue
		}
		merged[key] = append([]byte(nil), w.value...)
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fn([]byte(key), merged[key]) {
			break
		}
	}
	return nil
}

func (o *overlay) flush() error {
	if o.closed {
		return ErrTxnClosed
	}
	batch := o.base.NewBatch()
	keys := make([]string, 0, len(o.writes))
	for key := range o.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		w := o.writes[key]
		if w.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), w.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit batch: %w", err)
	}
	o.close()
	return nil
}

func (o *overlay) close() {
	o.closed = true
	o.writes = nil
}
