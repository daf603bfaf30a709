package codec

import "github.com/google/uuid"

func encodeGUID(column string, value any) ([]byte, error) {
	switch v := value.(type) {
	case uuid.UUID:
		b := v
		return b[:], nil
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return nil, invalid(column, GUID, "not a valid GUID string")
		}
		return parsed[:], nil
	default:
		return nil, invalid(column, GUID, "expected uuid.UUID or string")
	}
}

func decodeGUID(column string, data []byte) (any, error) {
	if len(data) < 16 {
		return nil, invalid(column, GUID, "truncated")
	}
	var u uuid.UUID
	copy(u[:], data[:16])
	return u, nil
}
