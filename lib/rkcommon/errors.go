// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package rkcommon

import (
	"fmt"

	"github.com/pkg/errors"
)

// The BootROM aborts on any structural deviation, so structural problems
// are hard errors. Integrity problems are not: the vendor tools keep going
// on a bad checksum so corrupted images can still be inspected, and unpack
// paths here do the same, attaching a ChecksumWarning instead of failing.
var (
	ErrConfig                 = errors.New("invalid manifest")
	ErrPayloadTooLarge        = errors.New("payload too large")
	ErrMalformedImage         = errors.New("malformed image")
	ErrUnsupportedCombination = errors.New("unsupported component combination")
)

type ChecksumWarning struct {
	Region   string
	Expected uint32
	Got      uint32
}

func (w *ChecksumWarning) Error() string {
	return fmt.Sprintf("checksum mismatch in %s: stored 0x%08x, calculated 0x%08x",
		w.Region, w.Expected, w.Got)
}

// DigestWarning is the secure-hash counterpart of ChecksumWarning.
type DigestWarning struct {
	Region   string
	Expected []byte
	Got      []byte
}

func (w *DigestWarning) Error() string {
	return fmt.Sprintf("digest mismatch in %s: stored %x, calculated %x",
		w.Region, w.Expected, w.Got)
}
