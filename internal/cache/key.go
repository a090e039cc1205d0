// Package cache decides whether a prior render can be reused. Keys are
// content-addressed: a stable digest over every transitive input, so a
// one-byte change anywhere forces a rebuild and reverting it restores
// the original key. Storage is tiered: a bounded in-process tier, a
// persistent disk tier with TTL, and an optional shared directory tier.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// Key is the hex digest addressing one cache entry.
type Key string

// ComputeKey digests the fixed-order concatenation of the persona file
// hash, each resolved trait file hash in topological order, and the
// template file hash. Input hashes are length-delimited so boundary
// shifts cannot collide.
func ComputeKey(personaHash string, traitHashes []string, templateHash string) Key {
	h := sha256.New()
	writeDelimited(h, personaHash)
	for _, th := range traitHashes {
		writeDelimited(h, th)
	}
	writeDelimited(h, templateHash)
	return Key(hex.EncodeToString(h.Sum(nil)))
}

func writeDelimited(h interface{ Write([]byte) (int, error) }, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

// Entry is one cached render: the output bytes plus the store time.
type Entry struct {
	Output   []byte
	StoredAt time.Time
}

// encodeEntry writes an entry as an 8-byte big-endian unix-nano
// timestamp followed by the output bytes. No language-native
// serialization is involved.
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 8+len(e.Output))
	binary.BigEndian.PutUint64(buf[:8], uint64(e.StoredAt.UnixNano()))
	copy(buf[8:], e.Output)
	return buf
}

func decodeEntry(data []byte) (Entry, error) {
	if len(data) < 8 {
		return Entry{}, fmt.Errorf("cache entry too short: %d bytes", len(data))
	}
	ts := int64(binary.BigEndian.Uint64(data[:8]))
	out := make([]byte, len(data)-8)
	copy(out, data[8:])
	return Entry{Output: out, StoredAt: time.Unix(0, ts)}, nil
}
