package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/usul27/pknx/internal/infrastructure/database"
	"github.com/usul27/pknx/recorder"
)

var inventoryDevices bool

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "List group addresses and devices seen on the bus",
	Long: `Print the address inventory the bridge daemon records while running.

Examples:
  pknx inventory --config pknx.yaml
  pknx inventory --devices`,
	Args: cobra.NoArgs,
	RunE: runInventory,
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
	inventoryCmd.Flags().BoolVar(&inventoryDevices, "devices", false, "List devices instead of group addresses")
}

func runInventory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	rec := recorder.New(db.DB)
	if err := rec.Start(); err != nil {
		return err
	}
	defer rec.Stop()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	defer w.Flush() //nolint:errcheck

	if inventoryDevices {
		devices, err := rec.Devices(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ADDRESS\tMESSAGES\tLAST SEEN")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%d\t%s\n", d.Address, d.MessageCount, d.LastSeen.Format("2006-01-02 15:04:05"))
		}
		return nil
	}

	records, err := rec.GroupAddresses(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ADDRESS\tMESSAGES\tLAST SERVICE\tANSWERS READS\tLAST SEEN")
	for _, r := range records {
		answers := ""
		if r.HasReadResponse {
			answers = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			r.Address, r.MessageCount, r.LastService, answers,
			r.LastSeen.Format("2006-01-02 15:04:05"))
	}
	return nil
}
