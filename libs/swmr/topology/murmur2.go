package topology

import "encoding/binary"

const (
	// DefaultSeed is shared by every process in a deployment; changing it remaps all sessions.
	DefaultSeed uint32 = 0xc58f1a7b

	murmurM uint32 = 0x5bd1e995
	murmurR        = 24
)

// Murmur2 hashes data with DefaultSeed.
func Murmur2(data []byte) uint32 {
	return Murmur2WithSeed(data, DefaultSeed)
}

// Murmur2WithSeed is 32-bit MurmurHash2 over little-endian 4-byte blocks. Empty input hashes to 0.
func Murmur2WithSeed(data []byte, seed uint32) uint32 {
	length := len(data)
	if length == 0 {
		return 0
	}
	h := seed ^ uint32(length)
	for len(data) >= 4 {
		k := binary.LittleEndian.Uint32(data)
		k *= murmurM
		k ^= k >> murmurR
		k *= murmurM

		h *= murmurM
		h ^= k
		data = data[4:]
	}
	switch len(data) {
	case 3:
		h ^= uint32(data[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[0])
		h *= murmurM
	}
	h ^= h >> 13
	h *= murmurM
	h ^= h >> 15
	return h
}

func hashString(s string) uint32 {
	return Murmur2([]byte(s))
}
