// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mapt

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
)

// EABits is one combination of the embedded address bits identifying a
// simulated CE within the BMR: the IPv4 suffix and the port set ID.
type EABits struct {
	IPv4Suffix uint32
	Psid       uint16
}

// NewRand returns a 64-bit pseudorandom generator seeded from the
// operating system entropy source.
func NewRand() *rand.Rand {
	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("cannot read entropy for the random generator: " + err.Error())
	}
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:]))))
}

// RandomPermutation enumerates the whole EA-bit space in a uniform
// pseudorandom order: suffixes 1..2^L-2 (all-zeros and all-ones are
// excluded) crossed with PSIDs 0..2^P-1. The inside-out variant of the
// Fisher-Yates shuffle, as formulated by Durstenfeld, writes every
// element exactly once, so each (suffix, psid) pair appears exactly
// once in the result.
func RandomPermutation(suffixLength, psidLength uint8, rnd *rand.Rand) []EABits {
	xsize := uint64(1) << suffixLength
	ysize := uint64(1) << psidLength
	size := (xsize - 2) * ysize
	array := make([]EABits, size)

	const suffixMin = 1
	array[0] = EABits{IPv4Suffix: suffixMin, Psid: 0}
	for index := uint64(1); index < size; index++ {
		x := index / ysize // suffix coordinate relative to suffixMin
		y := index % ysize // psid coordinate
		random := uint64(rnd.Int63n(int64(index + 1)))
		// the "random != index" check is left out to spare a branch on
		// the cost of a redundant copy
		array[index] = array[random]
		array[random] = EABits{IPv4Suffix: uint32(x + suffixMin), Psid: uint16(y)}
	}
	return array
}
