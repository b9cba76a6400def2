package protocol

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// EntryChecksum computes the content hash of an anchor entry, excluding
// the checksum field itself. Integrity, not identity.
func EntryChecksum(entry AnchorEntry) string {
	entry.Checksum = ""
	data, err := json.Marshal(entry)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PayloadHash hashes an opaque serialized payload for fingerprinting.
func PayloadHash(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// SetChecksum computes the content hash of a whole anchor set. Entries
// must already be in anchor id order; per-entry checksums are excluded,
// matching EntryChecksum.
func SetChecksum(entries []AnchorEntry) string {
	h := blake3.New()
	for _, entry := range entries {
		entry.Checksum = ""
		data, err := json.Marshal(entry)
		if err != nil {
			return ""
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
