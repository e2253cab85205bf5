package model

import (
	"crypto/sha256"
	"encoding/binary"
)

// Host key derivation. Keys are content-addressed from the (eventID,
// ruleID) pair so that reschedules of the same pair land on the same host
// registration, with a domain prefix separating them from any other hash
// use. The attempt counter salts the hash for deterministic collision
// perturbation.
const hostKeyDomain = "chime/hostkey/v1"

// HostKeySpace bounds the key range accepted by the host scheduler.
// Keys are in [1, HostKeySpace); zero is reserved as "unassigned".
const HostKeySpace = 1 << 30

// HostKey derives the bounded registration key for a pair. attempt 0 is
// the primary key; higher attempts produce the deterministic perturbation
// sequence used when the primary collides with another active alarm.
func HostKey(eventID, ruleID string, attempt int) int32 {
	h := sha256.New()
	h.Write([]byte(hostKeyDomain))
	h.Write([]byte{0}) // null separator avoids boundary ambiguity
	h.Write([]byte(eventID))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	h.Write([]byte{0})

	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], uint64(attempt))
	h.Write(salt[:])

	sum := h.Sum(nil)
	key := binary.BigEndian.Uint32(sum[:4]) % HostKeySpace
	if key == 0 {
		key = 1
	}
	return int32(key)
}
