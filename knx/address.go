package knx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GroupAddress represents a KNX group address in 3-level format.
//
// Format: Main/Middle/Sub
//   - Main:   0-31 (5 bits)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
//
// Total: 16 bits (0x0000 - 0xFFFF)
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

// Group address limits per KNX specification.
const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255

	// maxTwoLevelSub is the sub range in 2-level format (11 bits).
	maxTwoLevelSub = 2047

	// Bit masks for extracting group address parts from uint16.
	gaMainMask   = 0x1F // 5 bits
	gaMiddleMask = 0x07 // 3 bits
	gaSubMask    = 0xFF // 8 bits
)

// ParseGroupAddress parses a group address string.
//
// Accepts formats:
//   - "1/2/3"  - standard 3-level format (main/middle/sub)
//   - "1/515"  - 2-level format (main/sub, sub 0-2047)
//   - "2563"   - flat 16-bit decimal value
//
// Returns ErrInvalidGroupAddress if parsing fails or a component is
// out of range.
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(s, "/")

	switch len(parts) {
	case 1:
		flat, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return GroupAddress{}, fmt.Errorf("%w: not a flat 16-bit value: %q", ErrInvalidGroupAddress, s)
		}
		return GroupAddressFromUint16(uint16(flat)), nil

	case 2:
		main, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil || main > maxMain {
			return GroupAddress{}, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMain, parts[0])
		}
		sub, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil || sub > maxTwoLevelSub {
			return GroupAddress{}, fmt.Errorf("%w: 2-level sub must be 0-%d, got %q", ErrInvalidGroupAddress, maxTwoLevelSub, parts[1])
		}
		return GroupAddressFromUint16(uint16(main)<<11 | uint16(sub)), nil

	case 3:
		main, err := strconv.ParseUint(parts[0], 10, 8)
		if err != nil || main > maxMain {
			return GroupAddress{}, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMain, parts[0])
		}
		middle, err := strconv.ParseUint(parts[1], 10, 8)
		if err != nil || middle > maxMiddle {
			return GroupAddress{}, fmt.Errorf("%w: middle group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMiddle, parts[1])
		}
		sub, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil || sub > maxSub {
			return GroupAddress{}, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrInvalidGroupAddress, maxSub, parts[2])
		}
		return GroupAddress{
			Main:   uint8(main),
			Middle: uint8(middle),
			Sub:    uint8(sub),
		}, nil

	default:
		return GroupAddress{}, fmt.Errorf("%w: expected 1, 2 or 3 components, got %q", ErrInvalidGroupAddress, s)
	}
}

// String returns the group address in 3-level format.
//
// Example: "1/2/3"
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// ToUint16 converts the group address to a 16-bit integer.
//
// Layout: MMMM MSSS SSSS SSSS
//   - M = Main (5 bits)
//   - S = Middle (3 bits) + Sub (8 bits)
func (ga GroupAddress) ToUint16() uint16 {
	return uint16(ga.Main)<<11 | uint16(ga.Middle)<<8 | uint16(ga.Sub)
}

// GroupAddressFromUint16 creates a GroupAddress from a 16-bit integer.
func GroupAddressFromUint16(value uint16) GroupAddress {
	// Bit masks ensure values fit in uint8 (no overflow possible).
	return GroupAddress{
		Main:   uint8((value >> 11) & gaMainMask),
		Middle: uint8((value >> 8) & gaMiddleMask),
		Sub:    uint8(value & gaSubMask),
	}
}

// URLEncode returns the group address as a URL-encoded string.
//
// This is used in MQTT topics where "/" is a level separator.
//
// Example: "1/2/3" → "1%2F2%2F3"
func (ga GroupAddress) URLEncode() string {
	return url.PathEscape(ga.String())
}

// ParseGroupAddressFromURL parses a URL-encoded group address.
func ParseGroupAddressFromURL(encoded string) (GroupAddress, error) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return GroupAddress{}, fmt.Errorf("%w: URL decode failed: %w", ErrInvalidGroupAddress, err)
	}
	return ParseGroupAddress(decoded)
}

// IsValid returns true if the group address values are within valid ranges.
func (ga GroupAddress) IsValid() bool {
	return ga.Main <= maxMain && ga.Middle <= maxMiddle && ga.Sub <= maxSub
}

// IndividualAddress represents a KNX individual (physical) address.
//
// Format: Area.Line.Device
//   - Area:   0-15 (4 bits)
//   - Line:   0-15 (4 bits)
//   - Device: 0-255 (8 bits)
//
// Individual addresses identify physical devices on the bus, as opposed
// to group addresses which identify logical control points.
type IndividualAddress struct {
	Area   uint8
	Line   uint8
	Device uint8
}

const (
	maxArea = 15
	maxLine = 15
)

// ParseIndividualAddress parses an "area.line.device" string.
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return IndividualAddress{}, fmt.Errorf("%w: expected area.line.device, got %q", ErrInvalidIndividualAddress, s)
	}

	area, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || area > maxArea {
		return IndividualAddress{}, fmt.Errorf("%w: area must be 0-%d, got %q", ErrInvalidIndividualAddress, maxArea, parts[0])
	}

	line, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || line > maxLine {
		return IndividualAddress{}, fmt.Errorf("%w: line must be 0-%d, got %q", ErrInvalidIndividualAddress, maxLine, parts[1])
	}

	device, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return IndividualAddress{}, fmt.Errorf("%w: device must be 0-255, got %q", ErrInvalidIndividualAddress, parts[2])
	}

	return IndividualAddress{
		Area:   uint8(area),
		Line:   uint8(line),
		Device: uint8(device),
	}, nil
}

// String returns the individual address in dotted format.
//
// Example: "1.1.5"
func (ia IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", ia.Area, ia.Line, ia.Device)
}

// ToUint16 converts the individual address to its 16-bit wire form.
//
// Layout: AAAA LLLL DDDD DDDD
func (ia IndividualAddress) ToUint16() uint16 {
	return uint16(ia.Area)<<12 | uint16(ia.Line)<<8 | uint16(ia.Device)
}

// IndividualAddressFromUint16 creates an IndividualAddress from its
// 16-bit wire form.
func IndividualAddressFromUint16(value uint16) IndividualAddress {
	return IndividualAddress{
		Area:   uint8((value >> 12) & 0x0F),
		Line:   uint8((value >> 8) & 0x0F),
		Device: uint8(value & 0xFF),
	}
}
