package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	personasCmd := &cobra.Command{Use: "personas", Short: "Persona operations"}

	var personality, appearance, channelID string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if personality == "" {
				return fmt.Errorf("--personality required")
			}
			payload := map[string]interface{}{
				"name":        args[0],
				"personality": personality,
			}
			if appearance != "" {
				payload["appearance"] = appearance
			}
			if channelID != "" {
				payload["channelId"] = channelID
			}
			return printResponse(newClient().R().SetBody(payload).Post("/v0/personas"))
		},
	}
	createCmd.Flags().StringVarP(&personality, "personality", "p", "", "Persona personality prompt (required)")
	createCmd.Flags().StringVarP(&appearance, "appearance", "l", "", "Visual description for media generation")
	createCmd.Flags().StringVarP(&channelID, "channel", "c", "", "Home channel ID")
	_ = createCmd.MarkFlagRequired("personality")
	personasCmd.AddCommand(createCmd)

	personasCmd.AddCommand(&cobra.Command{
		Use:   "get NAME",
		Short: "Get a persona by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(newClient().R().Get("/v0/personas/" + args[0]))
		},
	})

	personasCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(newClient().R().Get("/v0/personas"))
		},
	})

	personasCmd.AddCommand(&cobra.Command{
		Use:   "rename NAME NEW_NAME",
		Short: "Rename a persona, migrating its shared memories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"newName": args[1]}
			return printResponse(newClient().R().SetBody(payload).Post("/v0/personas/" + args[0] + "/rename"))
		},
	})

	personasCmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a persona and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(newClient().R().Delete("/v0/personas/" + args[0]))
		},
	})

	personasCmd.AddCommand(&cobra.Command{
		Use:   "settings NAME",
		Short: "Show a persona's generation settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(newClient().R().Get("/v0/personas/" + args[0] + "/settings"))
		},
	})

	rootCmd.AddCommand(personasCmd)
}
