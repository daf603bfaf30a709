package codec

import "unicode/utf16"

// compressedSignal marks a text BLOB as compressed: one byte per UTF-16
// code unit instead of two, chosen automatically whenever every code unit
// in the value fits a single byte (spec.md §4.3's compressed-unicode
// opt-in).
var compressedSignal = [2]byte{0xFF, 0xFE}

func encodeText(s string, compress bool) ([]byte, error) {
	units := utf16.Encode([]rune(s))
	if compress {
		if fits, packed := tryCompress(units); fits {
			out := make([]byte, 0, 2+len(packed))
			out = append(out, compressedSignal[0], compressedSignal[1])
			out = append(out, packed...)
			return out, nil
		}
	}
	out := make([]byte, len(units)*2)
	for i, u := range units {
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out, nil
}

func tryCompress(units []uint16) (bool, []byte) {
	packed := make([]byte, len(units))
	for i, u := range units {
		if u > 0xFF {
			return false, nil
		}
		packed[i] = byte(u)
	}
	return true, packed
}

// EncodeText renders s as uncompressed UTF-16LE, the form Memo columns use
// (compressed unicode is reserved for TextFixed/TextVariable per spec.md
// §4.3).
func EncodeText(s string) ([]byte, error) { return encodeText(s, false) }

// DecodeText reverses EncodeText, also accepting the compressed form
// transparently (spec.md §4.3: "decoders accept either form").
func DecodeText(data []byte) (string, error) {
	v, err := decodeText("memo", data)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func decodeText(column string, data []byte) (any, error) {
	if len(data) >= 2 && data[0] == compressedSignal[0] && data[1] == compressedSignal[1] {
		body := data[2:]
		units := make([]uint16, len(body))
		for i, b := range body {
			units[i] = uint16(b)
		}
		return string(utf16.Decode(units)), nil
	}
	if len(data)%2 != 0 {
		return nil, invalid(column, TextVariable, "odd-length UTF-16LE payload")
	}
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}
