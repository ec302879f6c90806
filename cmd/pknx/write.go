package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/usul27/pknx/bridge"
	"github.com/usul27/pknx/knx"
)

var writeDPT string

var writeCmd = &cobra.Command{
	Use:   "write <group-address> <value>",
	Short: "Write a value to a group address",
	Long: `Send a GroupValueWrite.

Without --dpt the value is raw hex. With --dpt the value is encoded
according to the datapoint type: booleans accept on/off/true/false/0/1,
numbers are decimal.

Examples:
  pknx write 1/2/3 01
  pknx write 1/2/3 on --dpt 1.001
  pknx write 5/0/2 21.5 --dpt 9.001
  pknx write 4/0/1 75 --dpt 5.001`,
	Args: cobra.ExactArgs(2),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().StringVar(&writeDPT, "dpt", "", "Datapoint type for encoding, e.g. 9.001")
	rootCmd.AddCommand(toggleCmd)
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <group-address>",
	Short: "Toggle a 1-bit group address",
	Long: `Read the current value and write its inverse. The address must hold
a 1-bit value.

Example:
  pknx toggle 1/2/3`,
	Args: cobra.ExactArgs(1),
	RunE: runToggle,
}

func runWrite(cmd *cobra.Command, args []string) error {
	ga, err := knx.ParseGroupAddress(args[0])
	if err != nil {
		return err
	}

	payload, err := parseWriteValue(args[1], writeDPT)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, true)

	t, err := openTunnel(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer closeTunnel(t, log)

	if err := t.GroupWrite(cmd.Context(), ga, payload); err != nil {
		return fmt.Errorf("writing %s: %w", ga, err)
	}

	fmt.Printf("%s <- %X\n", ga, payload)
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	ga, err := knx.ParseGroupAddress(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, true)

	t, err := openTunnel(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer closeTunnel(t, log)

	if err := t.GroupToggle(cmd.Context(), ga, false); err != nil {
		return fmt.Errorf("toggling %s: %w", ga, err)
	}

	fmt.Printf("%s toggled\n", ga)
	return nil
}

// parseWriteValue turns the command-line value into a bus payload:
// raw hex without a DPT, typed encoding with one.
func parseWriteValue(raw, dpt string) ([]byte, error) {
	if dpt == "" {
		payload, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("value %q is not hex; use --dpt for typed values", raw)
		}
		return payload, nil
	}

	switch strings.ToLower(raw) {
	case "on", "true":
		return bridge.EncodeValue(dpt, true)
	case "off", "false":
		return bridge.EncodeValue(dpt, false)
	}

	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("value %q is not a number or on/off", raw)
	}
	return bridge.EncodeValue(dpt, num)
}
