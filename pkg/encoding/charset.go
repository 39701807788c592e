// Package encoding provides the text encodings used for strings in U3D
// streams and the EUC-KR helpers needed to read Ragnarok Online model files.
package encoding

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Charset is a named text encoding together with its IANA MIB enum value,
// which U3D files record in the header block.
type Charset struct {
	Name string
	MIB  uint32

	enc encoding.Encoding
}

// Known charsets.
var (
	UTF8        = Charset{Name: "UTF-8", MIB: 106, enc: unicode.UTF8}
	ISO8859_1   = Charset{Name: "ISO-8859-1", MIB: 4, enc: charmap.ISO8859_1}
	Windows1252 = Charset{Name: "windows-1252", MIB: 2252, enc: charmap.Windows1252}
	ShiftJIS    = Charset{Name: "Shift_JIS", MIB: 17, enc: japanese.ShiftJIS}
	EUCKR       = Charset{Name: "EUC-KR", MIB: 38, enc: korean.EUCKR}
	UTF16LE     = Charset{Name: "UTF-16LE", MIB: 1014, enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)}
)

var charsets = []Charset{UTF8, ISO8859_1, Windows1252, ShiftJIS, EUCKR, UTF16LE}

var aliases = map[string]string{
	"utf8":    "utf-8",
	"latin1":  "iso-8859-1",
	"cp1252":  "windows-1252",
	"sjis":    "shift_jis",
	"euckr":   "euc-kr",
	"cp949":   "euc-kr",
	"utf16le": "utf-16le",
}

// Lookup resolves a charset by name or common alias, ignoring case.
func Lookup(name string) (Charset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[key]; ok {
		key = a
	}
	for _, cs := range charsets {
		if strings.ToLower(cs.Name) == key {
			return cs, nil
		}
	}
	return Charset{}, fmt.Errorf("unknown text encoding %q", name)
}

// IsZero reports whether cs is the zero Charset.
func (cs Charset) IsZero() bool {
	return cs.enc == nil
}

// Encode converts s to the charset's byte representation. Runes the charset
// cannot represent are replaced by its replacement character.
func (cs Charset) Encode(s string) []byte {
	if cs.enc == nil || cs.enc == unicode.UTF8 {
		return []byte(strings.ToValidUTF8(s, "\uFFFD"))
	}
	out, _, err := transform.Bytes(encoding.ReplaceUnsupported(cs.enc.NewEncoder()), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// Decode converts bytes in the charset to a UTF-8 string.
func (cs Charset) Decode(b []byte) (string, error) {
	if cs.enc == nil || cs.enc == unicode.UTF8 {
		return string(b), nil
	}
	out, _, err := transform.Bytes(cs.enc.NewDecoder(), b)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", cs.Name, err)
	}
	return string(out), nil
}

// String returns the charset name.
func (cs Charset) String() string {
	return cs.Name
}
