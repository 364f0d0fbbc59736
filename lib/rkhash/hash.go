// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package rkhash computes the SHA-256 digests carried by the second-loader
// and trust headers.
package rkhash

import (
	"crypto/sha256"
	"encoding/binary"
)

const Size = sha256.Size

// Digest is a plain SHA-256 over data, used for per-component hashes in
// the trust image.
func Digest(data []byte) [Size]byte {
	return sha256.Sum256(data)
}

// HeaderDigest computes the digest stored in a second-loader header. The
// header fields are appended to the payload little-endian, but version is
// only included when it is non-zero. External signing tools reproduce this
// exact construction, so the asymmetry is part of the format.
func HeaderDigest(data []byte, version, loadAddr, loadSize, hashLen uint32) [Size]byte {
	h := sha256.New()
	h.Write(data)

	var w [4]byte
	if version != 0 {
		binary.LittleEndian.PutUint32(w[:], version)
		h.Write(w[:])
	}
	binary.LittleEndian.PutUint32(w[:], loadAddr)
	h.Write(w[:])
	binary.LittleEndian.PutUint32(w[:], loadSize)
	h.Write(w[:])
	binary.LittleEndian.PutUint32(w[:], hashLen)
	h.Write(w[:])

	var sum [Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
