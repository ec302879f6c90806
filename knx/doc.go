// Package knx defines the core KNX data model: group and individual
// addresses, group telegrams, and datapoint type (DPT) codecs.
//
// # Group Addresses
//
// KNX uses group addresses for logical control points. This package uses
// the 3-level format Main/Middle/Sub (e.g., "1/2/3") as canonical form and
// also parses 2-level ("1/515") and flat 16-bit forms.
//
// Example:
//
//	addr, err := knx.ParseGroupAddress("1/2/3")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(addr.String()) // "1/2/3"
//
// # Telegrams
//
// A Telegram carries one group service (read, write, or response) with an
// optional DPT-encoded payload of at most 14 bytes. Telegrams are value
// types, immutable once constructed.
//
// # Datapoint Types
//
// KNX defines standardised data formats (DPTs). This package supports common
// DPTs for lighting, blinds, climate, sensors and clocks:
//
//   - DPT 1.xxx: 1-bit (switch, bool, up/down)
//   - DPT 3.xxx: 4-bit dimming/blind control
//   - DPT 5.xxx: 1-byte unsigned (percentage, angle)
//   - DPT 9.xxx: 2-byte float (temperature, lux)
//   - DPT 10/11/19: time of day, date, date-and-time
//   - DPT 17/18: scene number and scene control
//
// # References
//
//   - KNX Specification: https://www.knx.org
package knx
