package audio

// G.711 µ-law and A-law conversion. Forwarded call audio is optionally
// encoded to G.711 before it leaves for the sink; both companding laws are
// only meaningful at 8000 Hz (enforced by [ResolveFormat]).
//
// Reference: ITU-T G.711.

const (
	muLawBias = 0x84
	muLawClip = 32635
	aLawClip  = 0x7FFF
)

// MuLawEncode converts one 16-bit linear PCM sample to µ-law.
func MuLawEncode(pcm int16) byte {
	v := int32(pcm)
	sign := byte(0)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exp := 7
	for mask := int32(0x4000); exp > 0 && v&mask == 0; mask >>= 1 {
		exp--
	}
	mant := byte((v >> (uint(exp) + 3)) & 0x0f)
	return ^(sign | byte(exp)<<4 | mant)
}

// MuLawDecode converts one µ-law byte to a 16-bit linear PCM sample.
func MuLawDecode(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exp := (b >> 4) & 0x07
	mant := b & 0x0f

	mag := ((int32(mant) << 3) + muLawBias) << exp
	mag -= muLawBias
	if sign != 0 {
		return int16(-mag)
	}
	return int16(mag)
}

// ALawEncode converts one 16-bit linear PCM sample to A-law.
func ALawEncode(pcm int16) byte {
	// A-law operates on a 13-bit magnitude.
	v := int32(pcm) >> 3
	mask := byte(0xD5) // sign bit set for non-negative, xor 0x55
	if v < 0 {
		v = -v - 1
		mask = 0x55
	}

	if v >= 0x1000 {
		v = 0xFFF
	}

	var out byte
	if v >= 0x20 {
		exp := 7
		for bound := int32(0x800); exp > 1 && v < bound; bound >>= 1 {
			exp--
		}
		out = byte(exp)<<4 | byte((v>>uint(exp))&0x0f)
	} else {
		out = byte(v >> 1)
	}
	return out ^ mask
}

// ALawDecode converts one A-law byte to a 16-bit linear PCM sample.
func ALawDecode(b byte) int16 {
	b ^= 0x55
	t := int32(b&0x0f) << 4
	seg := (b & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if b&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// PCMToMuLaw compands 16-bit little-endian linear PCM to µ-law bytes.
func PCMToMuLaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = MuLawEncode(sample)
	}
	return out
}

// MuLawToPCM expands µ-law bytes to 16-bit little-endian linear PCM.
func MuLawToPCM(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := MuLawDecode(b)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// PCMToALaw compands 16-bit little-endian linear PCM to A-law bytes.
func PCMToALaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = ALawEncode(sample)
	}
	return out
}

// ALawToPCM expands A-law bytes to 16-bit little-endian linear PCM.
func ALawToPCM(alaw []byte) []byte {
	out := make([]byte, len(alaw)*2)
	for i, b := range alaw {
		sample := ALawDecode(b)
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}
