package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

func feedbackCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "List device tokens reported by the feedback service",
		Long: `Connect to the feedback service once and print every record it returns.

The feedback service forgets records once they are read, so pipe the
output somewhere if you need to keep it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := flags.gateway()
			if err != nil {
				return err
			}
			defer gw.Close()

			records, err := gw.Feedback().Fetch(cmd.Context())
			if err != nil {
				return err
			}
			return printRecords(cmd, records, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")

	return cmd
}

func printRecords(cmd *cobra.Command, records []apns.FeedbackRecord, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no feedback records")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tDEVICE TOKEN")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\n", r.Timestamp.Format(time.RFC3339), r.DeviceToken)
	}
	return w.Flush()
}
