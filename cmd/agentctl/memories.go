package main

import (
	"github.com/spf13/cobra"
)

func init() {
	memoriesCmd := &cobra.Command{Use: "memories", Short: "Long-term memory operations"}

	var userID string
	listCmd := &cobra.Command{
		Use:   "list PERSONA",
		Short: "List a persona's memories (shared scope unless --user is set)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient().R()
			if userID != "" {
				req.SetQueryParam("userId", userID)
			}
			return printResponse(req.Get("/v0/personas/" + args[0] + "/memories"))
		},
	}
	listCmd.Flags().StringVarP(&userID, "user", "u", "", "List the per-user scope instead of shared")
	memoriesCmd.AddCommand(listCmd)

	var addUserID string
	addCmd := &cobra.Command{
		Use:   "add PERSONA CONTENT",
		Short: "Save a memory directly",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"content": args[1]}
			if addUserID != "" {
				payload["userId"] = addUserID
			}
			return printResponse(newClient().R().SetBody(payload).Post("/v0/personas/" + args[0] + "/memories"))
		},
	}
	addCmd.Flags().StringVarP(&addUserID, "user", "u", "", "Scope the memory to one user")
	memoriesCmd.AddCommand(addCmd)

	memoriesCmd.AddCommand(&cobra.Command{
		Use:   "delete MEMORY_ID",
		Short: "Delete one memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResponse(newClient().R().Delete("/v0/memories/" + args[0]))
		},
	})

	rootCmd.AddCommand(memoriesCmd)
}
