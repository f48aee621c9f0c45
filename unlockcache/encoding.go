package unlockcache

import "encoding/base64"

// decodeKey/encodeKey carry the 32-byte master key through a
// structpb.Struct field, since the well-known JSON-ish struct type has
// no native bytes kind.
func encodeKey(key []byte) string {
	if key == nil {
		return ""
	}

	return base64.StdEncoding.EncodeToString(key)
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}

	return base64.StdEncoding.DecodeString(s)
}
