package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/usul27/pknx/discovery"
)

var discoverTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover KNXnet/IP gateways on the local network",
	Long: `Send a multicast SEARCH_REQUEST and list the gateways that answer.

Examples:
  pknx discover
  pknx discover --timeout 10`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 3, "Time to wait for responses, in seconds")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	gateways, err := discovery.Discover(cmd.Context(), discovery.Options{
		Timeout: time.Duration(discoverTimeout) * time.Second,
	})
	if err != nil {
		return err
	}

	if len(gateways) == 0 {
		fmt.Println("No gateways found.")
		return nil
	}

	for _, gw := range gateways {
		fmt.Println(gw.String())
	}
	return nil
}
