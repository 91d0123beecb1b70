package cipher

import (
	"encoding/binary"
	"fmt"
)

const xxteaDelta = 0x9e3779b9

// xxteaRounds mirrors the device firmware's schedule: 1 + 52*4/w with integer
// division, where w is the window size in bytes.
func xxteaRounds(windowBytes int) int {
	return 1 + 52*4/windowBytes
}

func xxteaWindow(window, key []byte, dir Direction) error {
	if len(key) != 16 {
		return fmt.Errorf("xxtea key must be 16 bytes, got %d", len(key))
	}
	size := len(window) &^ 3
	if size < 8 {
		return nil
	}
	n := size / 4
	v := make([]uint32, n)
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(window[i*4:])
	}
	var k [4]uint32
	for i := range k {
		k[i] = binary.LittleEndian.Uint32(key[i*4:])
	}

	rounds := xxteaRounds(size)
	if dir == Encipher {
		xxteaEncrypt(v, k, rounds)
	} else {
		xxteaDecrypt(v, k, rounds)
	}
	for i, w := range v {
		putUint32(window[i*4:], w)
	}
	return nil
}

func mx(sum, y, z uint32, p int, e uint32, k [4]uint32) uint32 {
	return ((z>>5 ^ y<<2) + (y>>3 ^ z<<4)) ^ ((sum ^ y) + (k[(uint32(p)&3)^e] ^ z))
}

func xxteaEncrypt(v []uint32, k [4]uint32, rounds int) {
	n := len(v)
	var sum uint32
	z := v[n-1]
	for ; rounds > 0; rounds-- {
		sum += xxteaDelta
		e := (sum >> 2) & 3
		var p int
		for p = 0; p < n-1; p++ {
			y := v[p+1]
			v[p] += mx(sum, y, z, p, e, k)
			z = v[p]
		}
		y := v[0]
		v[n-1] += mx(sum, y, z, p, e, k)
		z = v[n-1]
	}
}

func xxteaDecrypt(v []uint32, k [4]uint32, rounds int) {
	n := len(v)
	sum := uint32(rounds) * xxteaDelta
	y := v[0]
	for ; rounds > 0; rounds-- {
		e := (sum >> 2) & 3
		var p int
		for p = n - 1; p > 0; p-- {
			z := v[p-1]
			v[p] -= mx(sum, y, z, p, e, k)
			y = v[p]
		}
		z := v[n-1]
		v[0] -= mx(sum, y, z, p, e, k)
		y = v[0]
		sum -= xxteaDelta
	}
}

func putUint32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
