// Package audit keeps a tamper-evident, hash-chained record of sensitive
// vault operations: creates, unlocks, syncs, accessor changes.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type Op string

const (
	OpCreate         Op = "vault.create"
	OpUnlock         Op = "vault.unlock"
	OpUnlockThrottle Op = "vault.unlock.throttled"
	OpSync           Op = "vault.sync"
	OpPush           Op = "vault.push"
	OpAccessorChange Op = "vault.accessor"
)

type Entry struct {
	TS    int64  `json:"ts"`
	Op    Op     `json:"op"`
	Vault string `json:"vault"`
	Note  string `json:"note,omitempty"`
	Hash  string `json:"hash"`
}

// Log chains each entry's hash over the previous one, so truncation or
// in-place edits are detectable with Verify.
type Log struct {
	lastHash []byte
	entries  []Entry
}

func New() *Log { return &Log{} }

func (l *Log) Append(op Op, vault, note string) Entry {
	h := sha256.New()
	h.Write(l.lastHash)
	h.Write([]byte(op))
	h.Write([]byte(vault))
	h.Write([]byte(note))
	sum := h.Sum(nil)
	l.lastHash = sum
	e := Entry{
		TS:    time.Now().Unix(),
		Op:    op,
		Vault: vault,
		Note:  note,
		Hash:  hex.EncodeToString(sum),
	}
	l.entries = append(l.entries, e)
	return e
}

func (l *Log) Verify() error {
	var prev []byte
	for i, e := range l.entries {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.Op))
		h.Write([]byte(e.Vault))
		h.Write([]byte(e.Note))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Hash {
			return fmt.Errorf("audit chain broken at entry %d", i)
		}
		prev = sum
	}
	return nil
}

func (l *Log) Entries() []Entry { return append([]Entry(nil), l.entries...) }
