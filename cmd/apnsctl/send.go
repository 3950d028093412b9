package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

func sendCmd(flags *globalFlags) *cobra.Command {
	var (
		tokens []string
		alert  string
		title  string
		badge  int
		sound  string
		custom string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a notification to one or more devices",
		Long: `Send one notification per device token in a single batch.

Examples:
  apnsctl send --token 1f2e... --alert "Hello"
  apnsctl send --token a... --token b... --title Deploy --alert done --badge 3
  apnsctl send --token 1f2e... --alert hi --custom '{"order_id":42}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &dispatch.PushRequest{
				DeviceTokens: tokens,
				Alert:        alert,
				Title:        title,
				Sound:        sound,
			}
			if cmd.Flags().Changed("badge") {
				req.Badge = &badge
			}
			if custom != "" {
				if err := json.Unmarshal([]byte(custom), &req.Custom); err != nil {
					return fmt.Errorf("invalid --custom json: %w", err)
				}
			}
			if err := req.Validate(); err != nil {
				return err
			}

			gw, err := flags.gateway()
			if err != nil {
				return err
			}
			defer gw.Close()

			if err := gw.SendAll(cmd.Context(), req.Notifications(req.DeviceTokens)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d notification(s) via %s\n", len(req.DeviceTokens), gw.Config().Addr())
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tokens, "token", "t", nil, "device token in hex (repeatable)")
	cmd.Flags().StringVarP(&alert, "alert", "a", "", "alert text")
	cmd.Flags().StringVar(&title, "title", "", "alert title")
	cmd.Flags().IntVarP(&badge, "badge", "b", 0, "badge count")
	cmd.Flags().StringVarP(&sound, "sound", "s", "", "sound name")
	cmd.Flags().StringVar(&custom, "custom", "", "custom top-level payload keys as a JSON object")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}
