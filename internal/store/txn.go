// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// keySep joins user ids inside composite keys. Ids may contain ':' but
// never a NUL byte, so two distinct id pairs cannot produce the same key.
const keySep = "\x00"

// Key prefixes
const (
	conversationKeyPrefix = "conv:"
	pairKeyPrefix         = "pair:"
	memberKeyPrefix       = "member:"
	messageKeyPrefix      = "msg:"
	messageIDKeyPrefix    = "msgid:"
	userKeyPrefix         = "user:"
)

func conversationKey(id string) []byte {
	return []byte(conversationKeyPrefix + id)
}

func pairKey(lo, hi string) []byte {
	return []byte(pairKeyPrefix + lo + keySep + hi)
}

func memberKey(userID, conversationID string) []byte {
	return []byte(memberKeyPrefix + userID + keySep + conversationID)
}

func memberPrefix(userID string) []byte {
	return []byte(memberKeyPrefix + userID + keySep)
}

// messagePrefix is the key prefix of every message of a conversation.
func messagePrefix(conversationID string) []byte {
	return []byte(messageKeyPrefix + conversationID + ":")
}

// messageKey zero-pads seq so that byte order equals numeric order.
func messageKey(conversationID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", messageKeyPrefix, conversationID, seq))
}

func messageIDKey(id string) []byte {
	return []byte(messageIDKeyPrefix + id)
}

func userKey(id string) []byte {
	return []byte(userKeyPrefix + id)
}

// Txn is one store transaction. It is only valid inside the Update or View
// callback that produced it.
type Txn struct {
	txn    *badger.Txn
	update bool
}

func (t *Txn) getJSON(key []byte, v any) error {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (t *Txn) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := t.txn.Set(key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (t *Txn) exists(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return true, nil
}

func (t *Txn) getString(key []byte) (string, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(val), nil
}

func (t *Txn) requireUpdate() error {
	if !t.update {
		return badger.ErrReadOnlyTxn
	}
	return nil
}
