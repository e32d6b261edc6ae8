package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Record is a human readable view of one stored key, used by cmd/inspect.
type Record struct {
	Key       string
	Kind      string
	CreatedAt time.Time
	Subject   string
	Detail    string
}

// Describe decodes a raw key/value pair of the relay store.
func Describe(key, value []byte) (Record, error) {
	k := string(key)
	switch {
	case strings.HasPrefix(k, messageIDPrefix):
		return Record{Key: k, Kind: "MSGID", Detail: "-> " + string(value)}, nil
	case strings.HasPrefix(k, messagePrefix):
		m, err := decodeMessage(value)
		if err != nil {
			return Record{}, fmt.Errorf("key %s: %w", k, err)
		}
		return Record{
			Key:       k,
			Kind:      "MESSAGE",
			CreatedAt: m.CreatedAt,
			Subject:   fmt.Sprintf("%s -> %s", m.From, m.To),
			Detail:    fmt.Sprintf("%s delivered=%t %q", m.ID, m.Delivered, m.Body),
		}, nil
	case strings.HasPrefix(k, userPrefix):
		u, err := decodeUser(value)
		if err != nil {
			return Record{}, fmt.Errorf("key %s: %w", k, err)
		}
		return Record{Key: k, Kind: "USER", CreatedAt: u.CreatedAt, Subject: u.Username, Detail: fmt.Sprintf("%s %s", u.ID, u.Email)}, nil
	case strings.HasPrefix(k, emailPrefix):
		return Record{Key: k, Kind: "EMAIL", Detail: "-> " + string(value)}, nil
	}
	return Record{Key: k, Kind: "UNKNOWN", Detail: fmt.Sprintf("%d bytes", len(value))}, nil
}

// ScanRecords walks every key under prefix in key order. Records that cannot
// be decoded are passed to visit with their error and the scan goes on.
func ScanRecords(db *badger.DB, prefix string, visit func(Record, error)) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			visit(Describe(item.KeyCopy(nil), value))
		}
		return nil
	})
}
