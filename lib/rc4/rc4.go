// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package rc4 applies the fixed-key RC4 transform used to obscure parts of
// the bootstrap image. The key is the one baked into the BootROM and every
// vendor tool; it is public knowledge and provides obfuscation only, so it
// is deliberately not part of the API. Do not mistake this for encryption.
package rc4

// Keep the key internal. Exposing it invites someone to treat this as a
// real cipher with a real secret.
var fixedKey = [16]byte{
	124, 78, 3, 4, 85, 5, 9, 7,
	45, 44, 123, 56, 23, 13, 23, 17,
}

const BlockSize = 512

type state struct {
	s    [256]byte
	i, j byte
}

func newState() *state {
	st := &state{}
	for i := 0; i < 256; i++ {
		st.s[i] = byte(i)
	}

	var j byte
	for i := 0; i < 256; i++ {
		j += st.s[i] + fixedKey[i%len(fixedKey)]
		st.s[i], st.s[j] = st.s[j], st.s[i]
	}
	return st
}

func (st *state) xor(dst, src []byte) {
	for n, b := range src {
		st.i++
		st.j += st.s[st.i]
		st.s[st.i], st.s[st.j] = st.s[st.j], st.s[st.i]
		dst[n] = b ^ st.s[st.s[st.i]+st.s[st.j]]
	}
}

// Apply runs the whole buffer through a single keystream. RC4 is
// symmetric, so applying twice restores the input.
func Apply(data []byte) []byte {
	out := make([]byte, len(data))
	newState().xor(out, data)
	return out
}

// ApplyBlocks restarts the keystream for every 512-byte block, which is
// how the vendor tools treat loader entry data. A short trailing block is
// transformed with a fresh state too.
func ApplyBlocks(data []byte) []byte {
	out := make([]byte, len(data))
	for off := 0; off < len(data); off += BlockSize {
		end := off + BlockSize
		if end > len(data) {
			end = len(data)
		}
		newState().xor(out[off:end], data[off:end])
	}
	return out
}
