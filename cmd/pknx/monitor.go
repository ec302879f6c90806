package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usul27/pknx/bridge"
	"github.com/usul27/pknx/internal/infrastructure/config"
	"github.com/usul27/pknx/knx"
)

var monitorAddress string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print live bus traffic",
	Long: `Connect to the gateway and print every group telegram as it arrives,
until interrupted. With --address only that group address is shown.

Examples:
  pknx monitor
  pknx monitor --address 5/0/1 --config pknx.yaml`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorAddress, "address", "", "Only show this group address")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	var filter *knx.GroupAddress
	if monitorAddress != "" {
		ga, err := knx.ParseGroupAddress(monitorAddress)
		if err != nil {
			return err
		}
		filter = &ga
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

	telegrams := make(chan knx.Telegram, 64)
	t.SetOnTelegram(func(tel knx.Telegram) {
		select {
		case telegrams <- tel:
		default:
			// Terminal slower than the bus; drop rather than stall.
		}
	})

	fmt.Println("Monitoring bus traffic, Ctrl+C to stop.")
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case tel := <-telegrams:
			if filter != nil && tel.Destination != *filter {
				continue
			}
			printTelegram(cfg, tel)
		}
	}
}

func printTelegram(cfg *config.Config, tel knx.Telegram) {
	service := "write"
	switch {
	case tel.IsRead():
		service = "read"
	case tel.IsResponse():
		service = "response"
	}

	line := fmt.Sprintf("%s  %-8s %s -> %s",
		time.Now().Format("15:04:05.000"), service, tel.Source, tel.Destination)

	if !tel.IsRead() {
		line += fmt.Sprintf("  %X", tel.Data)
		if dpt := cfg.Bridge.DPT[tel.Destination.String()]; dpt != "" {
			if value, err := bridge.DecodeValue(dpt, tel.Data); err == nil {
				line += fmt.Sprintf("  (%v)", value)
			}
		}
	}

	fmt.Println(line)
}
