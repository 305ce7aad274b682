package kbschema

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Fingerprint digests the semantic fields of an article in a fixed order:
// short description first, then the HTML body. Fields are length-delimited
// so ("ab","c") and ("a","bc") cannot collide. SHA-256 was chosen over a
// non-cryptographic hash so equal digests imply equal content for all
// practical purposes; the hex form is truncated to 32 characters to keep it
// readable in logs and results.
func Fingerprint(shortDescription, html string) string {
	h := sha256.New()
	writeField(h, shortDescription)
	writeField(h, html)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
