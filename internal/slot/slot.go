// Package slot computes Redis Cluster hash slots.
package slot

// Count is the fixed number of hash slots the keyspace is partitioned into.
const Count = 16384

// Of returns the slot owning key, applying the hashtag rule: if key contains
// a '{' followed later by a non-empty '}' substring, only the bytes between
// them are hashed; otherwise the whole key is hashed.
func Of(key []byte) uint16 {
	return crc16(hashtag(key)) % Count
}

// hashtag extracts the substring between the first '{' and the next '}'
// when that substring is non-empty, otherwise returns key unchanged.
func hashtag(key []byte) []byte {
	start := -1
	for i, b := range key {
		if b == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return key
	}
	end := -1
	for i := start + 1; i < len(key); i++ {
		if key[i] == '}' {
			end = i
			break
		}
	}
	if end == -1 || end == start+1 {
		return key
	}
	return key[start+1 : end]
}

// crc16 is the XMODEM CRC16 (poly 0x1021, init 0) used by Redis Cluster.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// SameSlot reports whether every key in keys hashes to the same slot. An
// empty slice is trivially true.
func SameSlot(keys [][]byte) (uint16, bool) {
	if len(keys) == 0 {
		return 0, true
	}
	first := Of(keys[0])
	for _, k := range keys[1:] {
		if Of(k) != first {
			return 0, false
		}
	}
	return first, true
}
