package knx

import (
	"fmt"
	"math"
	"time"
)

// KNX Datapoint Type encoding constants.
const (
	// dpt5MaxValue is the maximum raw value for DPT5 (1-byte unsigned).
	dpt5MaxValue = 255

	// dpt5AngleMax is the maximum angle in degrees for DPT5.003.
	dpt5AngleMax = 360

	// dpt9MaxExponent is the maximum exponent for DPT9 2-byte float.
	dpt9MaxExponent = 15

	// dpt9MantissaMask is the mask for extracting mantissa from DPT9.
	dpt9MantissaMask = 0x07FF

	// dpt17MaxScene is the maximum scene number for DPT17/18.
	dpt17MaxScene = 63

	// dpt17SceneMask is the mask for extracting scene number.
	dpt17SceneMask = 0x3F

	// byteShift is the bit shift for byte extraction.
	byteShift = 8
)

// DPT represents a KNX Datapoint Type identifier.
//
// Format: "major.minor" (e.g., "1.001", "9.001")
type DPT string

// Common DPT identifiers used in building automation.
const (
	// 1-bit types (DPT 1.xxx)
	DPTSwitch    DPT = "1.001" // 0=Off, 1=On
	DPTBool      DPT = "1.002" // 0=False, 1=True
	DPTEnable    DPT = "1.003" // 0=Disable, 1=Enable
	DPTUpDown    DPT = "1.008" // 0=Up, 1=Down
	DPTOpenClose DPT = "1.009" // 0=Open, 1=Close

	// 4-bit types (DPT 3.xxx)
	DPTDimmingControl DPT = "3.007" // Direction + steps

	// 1-byte unsigned types (DPT 5.xxx)
	DPTPercentage DPT = "5.001" // 0-100%
	DPTAngle      DPT = "5.003" // 0-360°
	DPTPercentU8  DPT = "5.004" // 0-255 raw

	// 2-byte float types (DPT 9.xxx)
	DPTTemperature DPT = "9.001" // -273 to 670760 °C
	DPTLux         DPT = "9.004" // 0 to 670760 lux
	DPTHumidity    DPT = "9.007" // 0-100%

	// Time and date types
	DPTTimeOfDay DPT = "10.001" // 3-byte time + day of week
	DPTDate      DPT = "11.001" // 3-byte date
	DPTDateTime  DPT = "19.001" // 8-byte date and time

	// 1-byte scene types (DPT 17/18.xxx)
	DPTSceneNumber  DPT = "17.001" // 0-63 scene number
	DPTSceneControl DPT = "18.001" // Scene + learn bit
)

// EncodeDPT1 encodes a boolean value to 1-bit KNX format.
//
// Used for: switch, bool, enable, up/down, open/close.
func EncodeDPT1(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeDPT1 decodes a 1-bit KNX value to boolean.
func DecodeDPT1(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fmt.Errorf("%w: DPT1 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return (data[0] & 0x01) != 0, nil
}

// EncodeDPT3 encodes a dimming/blind control value.
// Steps 0-7, where 0 means stop.
func EncodeDPT3(increase bool, steps uint8) []byte {
	var value byte
	if increase {
		value = 0x08 // Bit 3 = direction (1=increase)
	}
	value |= (steps & 0x07)
	return []byte{value}
}

// DecodeDPT3 decodes a dimming/blind control value.
func DecodeDPT3(data []byte) (increase bool, steps uint8, err error) {
	if len(data) < 1 {
		return false, 0, fmt.Errorf("%w: DPT3 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	increase = (data[0] & 0x08) != 0
	steps = data[0] & 0x07
	return increase, steps, nil
}

// EncodeDPT5 encodes a percentage (0-100) to 1-byte KNX format.
//
// DPT 5.001: Scales 0-100% to 0-255.
func EncodeDPT5(percent float64) []byte {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	value := uint8(math.Round(percent * 255 / 100))
	return []byte{value}
}

// DecodeDPT5 decodes a 1-byte KNX value to percentage.
func DecodeDPT5(data []byte) (float64, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: DPT5 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return float64(data[0]) * 100 / dpt5MaxValue, nil
}

// EncodeDPT5Angle encodes an angle (0-360) to 1-byte KNX format.
func EncodeDPT5Angle(angle float64) []byte {
	if angle < 0 {
		angle = 0
	} else if angle > dpt5AngleMax {
		angle = dpt5AngleMax
	}
	value := uint8(math.Round(angle * dpt5MaxValue / dpt5AngleMax))
	return []byte{value}
}

// DecodeDPT5Angle decodes a 1-byte KNX value to angle.
func DecodeDPT5Angle(data []byte) (float64, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: DPT5 angle requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return float64(data[0]) * dpt5AngleMax / dpt5MaxValue, nil
}

// EncodeDPT9 encodes a float value to 2-byte KNX floating point format.
//
// Used for: temperature, lux, humidity, etc.
//
// KNX 2-byte float format:
//
//	Byte 0: SEEE EMMM (Sign, Exponent high, Mantissa high)
//	Byte 1: MMMM MMMM (Mantissa low)
//
// Value = (0.01 × Mantissa) × 2^Exponent
func EncodeDPT9(value float64) ([]byte, error) {
	if value < -671088.64 || value > 670760.96 {
		return nil, fmt.Errorf("%w: DPT9 value out of range: %.2f (valid: -671088.64 to 670760.96)", ErrEncodingFailed, value)
	}

	var sign uint16
	if value < 0 {
		sign = 0x8000
		value = -value
	}

	exp := 0
	mantissa := value * 100

	for mantissa > 2047 {
		mantissa /= 2
		exp++
	}

	if exp > dpt9MaxExponent {
		return nil, fmt.Errorf("%w: DPT9 exponent overflow for value %.2f", ErrEncodingFailed, value)
	}

	m := int16(mantissa)
	if sign != 0 {
		m = -m
	}

	encoded := sign | (uint16(exp) << 11) | (uint16(m) & dpt9MantissaMask)
	return []byte{byte(encoded >> byteShift), byte(encoded)}, nil
}

// DecodeDPT9 decodes a 2-byte KNX floating point value.
func DecodeDPT9(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: DPT9 requires 2 bytes, got %d", ErrDecodingFailed, len(data))
	}

	raw := uint16(data[0])<<8 | uint16(data[1])

	// KNX spec: 0x7FFF is the "invalid data" sentinel for all DPT 9.xxx types.
	if raw == 0x7FFF {
		return 0, fmt.Errorf("%w: DPT9 invalid value 0x7FFF (sensor error or not available)", ErrDecodingFailed)
	}

	sign := (raw & 0x8000) != 0
	exp := (raw >> 11) & 0x0F
	mantissa := int16(raw & dpt9MantissaMask)

	if sign {
		mantissa |= -0x800 // Sign extend (0xF800 as int16 = -2048)
	}

	value := float64(mantissa) * 0.01 * math.Pow(2, float64(exp))
	return value, nil
}

// EncodeDPT10 encodes a time of day to 3-byte KNX format.
//
// DPT 10.001 layout:
//
//	Byte 0: DDDH HHHH (Day of week 0-7, 0=no day; hour)
//	Byte 1: minute
//	Byte 2: second
func EncodeDPT10(dow uint8, t time.Time) []byte {
	return []byte{
		(dow&0x07)<<5 | uint8(t.Hour()),
		uint8(t.Minute()),
		uint8(t.Second()),
	}
}

// DecodeDPT10 decodes a 3-byte KNX time of day.
// Returns the day of week (0 means "no day") and the time components
// anchored to the zero date.
func DecodeDPT10(data []byte) (dow uint8, hour, minute, second int, err error) {
	if len(data) < 3 {
		return 0, 0, 0, 0, fmt.Errorf("%w: DPT10 requires 3 bytes, got %d", ErrDecodingFailed, len(data))
	}
	dow = data[0] >> 5
	hour = int(data[0] & 0x1F)
	minute = int(data[1])
	second = int(data[2])
	if hour > 23 || minute > 59 || second > 59 {
		return 0, 0, 0, 0, fmt.Errorf("%w: DPT10 out-of-range time %02d:%02d:%02d", ErrDecodingFailed, hour, minute, second)
	}
	return dow, hour, minute, second, nil
}

// EncodeDPT11 encodes a date to 3-byte KNX format.
//
// DPT 11.001 carries a two-digit year: 90-99 map to 1990-1999,
// 0-89 map to 2000-2089.
func EncodeDPT11(t time.Time) ([]byte, error) {
	year := t.Year()
	if year < 1990 || year > 2089 {
		return nil, fmt.Errorf("%w: DPT11 year must be 1990-2089, got %d", ErrEncodingFailed, year)
	}
	var short int
	if year < 2000 {
		short = year - 1900
	} else {
		short = year - 2000
	}
	return []byte{uint8(t.Day()), uint8(t.Month()), uint8(short)}, nil
}

// DecodeDPT11 decodes a 3-byte KNX date.
func DecodeDPT11(data []byte) (time.Time, error) {
	if len(data) < 3 {
		return time.Time{}, fmt.Errorf("%w: DPT11 requires 3 bytes, got %d", ErrDecodingFailed, len(data))
	}
	day := int(data[0] & 0x1F)
	month := int(data[1] & 0x0F)
	year := int(data[2] & 0x7F)
	if year >= 90 {
		year += 1900
	} else {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: DPT11 out-of-range date %d-%d-%d", ErrDecodingFailed, year, month, day)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

// EncodeDPT19 encodes a timestamp to 8-byte KNX date-and-time format.
//
// DPT 19.001 layout:
//
//	Byte 0: year - 1900
//	Byte 1: month
//	Byte 2: day
//	Byte 3: DDDH HHHH (ISO day of week; hour)
//	Byte 4: minute
//	Byte 5: second
//	Byte 6: status flags (working day, WD valid)
//	Byte 7: clock quality (bit 7 = synced external)
func EncodeDPT19(t time.Time) ([]byte, error) {
	year := t.Year()
	if year < 1900 || year > 2155 {
		return nil, fmt.Errorf("%w: DPT19 year must be 1900-2155, got %d", ErrEncodingFailed, year)
	}

	dow := uint8(t.Weekday())
	if dow == 0 {
		dow = 7 // ISO: Sunday is 7
	}
	workingDay := uint8(0)
	if dow < 6 {
		workingDay = 1
	}

	return []byte{
		uint8(year - 1900),
		uint8(t.Month()),
		uint8(t.Day()),
		dow<<5 | uint8(t.Hour()),
		uint8(t.Minute()),
		uint8(t.Second()),
		workingDay<<6 | 1<<5, // working day flag + WD-valid
		0x80,                 // clock synced externally
	}, nil
}

// DecodeDPT19 decodes an 8-byte KNX date-and-time value.
func DecodeDPT19(data []byte) (time.Time, error) {
	if len(data) < 8 {
		return time.Time{}, fmt.Errorf("%w: DPT19 requires 8 bytes, got %d", ErrDecodingFailed, len(data))
	}
	year := int(data[0]) + 1900
	month := int(data[1] & 0x0F)
	day := int(data[2] & 0x1F)
	hour := int(data[3] & 0x1F)
	minute := int(data[4] & 0x3F)
	second := int(data[5] & 0x3F)
	if month < 1 || month > 12 || day < 1 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: DPT19 out-of-range components", ErrDecodingFailed)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// EncodeDPT17 encodes a scene number (0-63) to 1-byte format.
func EncodeDPT17(scene uint8) ([]byte, error) {
	if scene > dpt17MaxScene {
		return nil, fmt.Errorf("%w: DPT17 scene must be 0-%d, got %d", ErrEncodingFailed, dpt17MaxScene, scene)
	}
	return []byte{scene & dpt17SceneMask}, nil
}

// DecodeDPT17 decodes a scene number from 1-byte format.
func DecodeDPT17(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: DPT17 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return data[0] & dpt17SceneMask, nil
}

// EncodeDPT18 encodes a scene control value (learn bit + scene number).
func EncodeDPT18(scene uint8, learn bool) ([]byte, error) {
	if scene > dpt17MaxScene {
		return nil, fmt.Errorf("%w: DPT18 scene must be 0-%d, got %d", ErrEncodingFailed, dpt17MaxScene, scene)
	}
	value := scene & dpt17SceneMask
	if learn {
		value |= 0x80
	}
	return []byte{value}, nil
}

// DecodeDPT18 decodes a scene control value.
func DecodeDPT18(data []byte) (scene uint8, learn bool, err error) {
	if len(data) < 1 {
		return 0, false, fmt.Errorf("%w: DPT18 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	scene = data[0] & dpt17SceneMask
	learn = (data[0] & 0x80) != 0
	return scene, learn, nil
}
