package encoding

import "bytes"

// EUCKRToUTF8 decodes EUC-KR bytes, the encoding of names in RSM models
// and GRF archives. Invalid input is returned as is.
func EUCKRToUTF8(data []byte) string {
	s, err := EUCKR.Decode(data)
	if err != nil {
		return string(data)
	}
	return s
}

// UTF8ToEUCKR encodes s as EUC-KR. Runes outside EUC-KR are replaced.
func UTF8ToEUCKR(s string) []byte {
	return EUCKR.Encode(s)
}

// FixedStringToUTF8 decodes a fixed-size, zero-terminated EUC-KR field.
func FixedStringToUTF8(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return EUCKRToUTF8(data)
}

// UTF8ToFixedString encodes s into a zero-padded EUC-KR field of size
// bytes. Longer names are cut to size-1 bytes so the field stays
// terminated, without splitting a two-byte character.
func UTF8ToFixedString(s string, size int) []byte {
	result := make([]byte, size)
	enc := UTF8ToEUCKR(s)
	if len(enc) >= size {
		n := 0
		for n < size-1 {
			step := 1
			if enc[n] >= 0x80 {
				step = 2
			}
			if n+step > size-1 {
				break
			}
			n += step
		}
		enc = enc[:n]
	}
	copy(result, enc)
	return result
}
