package bridge

import (
	"fmt"
	"strings"

	"github.com/usul27/pknx/knx"
)

// EncodeValue turns a JSON command value into a bus payload according
// to the datapoint type. JSON numbers arrive as float64.
func EncodeValue(dpt string, value any) ([]byte, error) {
	switch {
	case strings.HasPrefix(dpt, "1."):
		on, err := asBool(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT1(on), nil

	case dpt == "5.001":
		percent, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT5(percent), nil

	case dpt == "5.003":
		angle, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT5Angle(angle), nil

	case strings.HasPrefix(dpt, "5."):
		raw, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		if raw < 0 || raw > 255 {
			return nil, fmt.Errorf("value %g out of range for %s", raw, dpt)
		}
		return []byte{byte(raw)}, nil

	case strings.HasPrefix(dpt, "9."):
		f, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT9(f)

	case dpt == "17.001":
		scene, err := asFloat(value)
		if err != nil {
			return nil, err
		}
		return knx.EncodeDPT17(uint8(scene))

	default:
		return nil, fmt.Errorf("%w: %q", knx.ErrInvalidDPT, dpt)
	}
}

// DecodeValue turns a bus payload into a JSON-friendly value according
// to the datapoint type.
func DecodeValue(dpt string, data []byte) (any, error) {
	switch {
	case strings.HasPrefix(dpt, "1."):
		return knx.DecodeDPT1(data)

	case dpt == "5.001":
		return knx.DecodeDPT5(data)

	case dpt == "5.003":
		return knx.DecodeDPT5Angle(data)

	case strings.HasPrefix(dpt, "5."):
		if len(data) != 1 {
			return nil, fmt.Errorf("%w: %s needs 1 byte, got %d", knx.ErrDecodingFailed, dpt, len(data))
		}
		return data[0], nil

	case strings.HasPrefix(dpt, "9."):
		return knx.DecodeDPT9(data)

	case dpt == "17.001":
		return knx.DecodeDPT17(data)

	default:
		return nil, fmt.Errorf("%w: %q", knx.ErrInvalidDPT, dpt)
	}
}

func asBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", value)
	}
}

func asFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}
