// Package store provides the durable collaborators behind the relay's
// gateway interfaces: a Badger-backed message log and a SQLite-backed
// presence table.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hanbit0/minichat/internal/server"
)

// BadgerHistory is an append-only, room-keyed message log on BadgerDB.
//
// Keys are formatted as "msg:{room}:{timestamp_padded}:{uuid}" so that a
// prefix scan over a room yields messages in chronological order (19-digit
// zero padding makes lexicographic order match time order), with the UUID as
// a collision disconnector when two messages land on the same nanosecond.
// The room segment is query-escaped so a delimiter inside a room name cannot
// make one room's prefix cover another's keys.
type BadgerHistory struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadgerHistory opens (or creates) the message log at path.
func OpenBadgerHistory(path string, log *slog.Logger) (*BadgerHistory, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerHistory{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *BadgerHistory) Close() error {
	return s.db.Close()
}

// roomPrefix returns the key prefix covering exactly one room. Escaping keeps
// the room segment free of the ":" delimiter.
func roomPrefix(room string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", url.QueryEscape(room)))
}

// Append stores one message for a room.
func (s *BadgerHistory) Append(room string, msg server.Message) error {
	id := msg.MsgID
	if id == "" {
		id = uuid.NewString()
	}
	key := fmt.Sprintf("%s%019d:%s", roomPrefix(room), time.Now().UnixNano(), id)

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Recent returns up to limit messages for a room, oldest first. It scans the
// room's key range in reverse to find the newest entries, then reverses the
// result into chronological order.
func (s *BadgerHistory) Recent(room string, limit int) ([]server.Message, error) {
	var values [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key for this room, then walk back.
		seekKey := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(values) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				values = append(values, append([]byte{}, val...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history for %s: %w", room, err)
	}

	messages := make([]server.Message, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		var msg server.Message
		if err := json.Unmarshal(values[i], &msg); err != nil {
			s.log.Warn("skipping undecodable history entry", "room", room, "err", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
