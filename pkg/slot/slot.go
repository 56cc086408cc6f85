// Package slot computes cluster hash slots for opaque binary keys.
//
// The keyspace is divided into 16384 slots. A key's slot is the CRC16
// (CCITT/XMODEM polynomial) of the key modulo the slot count. Keys may
// carry a {hash tag}: when a non-empty tag is present, only the tag is
// hashed, which lets callers pin related keys to one slot and keep native
// multi-key commands on the fast path.
package slot

import "bytes"

// Count is the number of hash slots the keyspace is divided into.
const Count = 16384

var crc16tab [256]uint16

func init() {
	// CCITT polynomial x^16 + x^12 + x^5 + 1, XMODEM variant (init 0).
	for i := range crc16tab {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc16tab[i] = crc
	}
}

func crc16(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^c]
	}
	return crc
}

// Of returns the hash slot owning key.
func Of(key []byte) uint16 {
	return crc16(tag(key)) % Count
}

// Same reports whether every key hashes to a single slot, i.e. whether a
// native multi-key command over them can run on one shard. At least one
// key is expected; Same returns false for an empty argument list.
func Same(keys ...[]byte) bool {
	if len(keys) == 0 {
		return false
	}
	first := Of(keys[0])
	for _, key := range keys[1:] {
		if Of(key) != first {
			return false
		}
	}
	return true
}

// tag returns the hashable portion of key: the content of the first
// {hash tag} when present and non-empty, otherwise the whole key.
func tag(key []byte) []byte {
	open := bytes.IndexByte(key, '{')
	if open == -1 {
		return key
	}
	closed := bytes.IndexByte(key[open+1:], '}')
	if closed <= 0 {
		// no '}' after '{', or an empty "{}" tag
		return key
	}
	return key[open+1 : open+1+closed]
}
