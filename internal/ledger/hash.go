package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// ChainHash links a history entry to its predecessor:
// SHA3-256(prev | txID | timestamp | isDelete | value), each field length-prefixed.
func ChainHash(prev string, m KeyModification) string {
	h := sha3.New256()
	writeField := func(b []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	writeField([]byte(prev))
	writeField([]byte(m.TxID))
	writeField([]byte(m.Timestamp.UTC().Format(time.RFC3339Nano)))
	if m.IsDelete {
		writeField([]byte{1})
	} else {
		writeField([]byte{0})
	}
	writeField(m.Value)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain recomputes the hash chain and returns the index of the first
// entry that does not match, or -1 when the chain is intact.
func VerifyChain(mods []KeyModification) int {
	prev := ""
	for i, m := range mods {
		if ChainHash(prev, m) != m.Hash {
			return i
		}
		if i > 0 && !m.Timestamp.After(mods[i-1].Timestamp) {
			return i
		}
		prev = m.Hash
	}
	return -1
}

// LastHash returns the hash of the newest entry, or "" for an empty history.
func LastHash(mods []KeyModification) string {
	if len(mods) == 0 {
		return ""
	}
	return mods[len(mods)-1].Hash
}
