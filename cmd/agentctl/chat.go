package main

import (
	"github.com/spf13/cobra"
)

func init() {
	var userID, sessionID, channelID, displayName string
	var channelMode bool

	chatCmd := &cobra.Command{
		Use:   "chat PERSONA MESSAGE",
		Short: "Send one chat turn to a persona",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"personaName": args[0],
				"userId":      userID,
				"message":     args[1],
			}
			if sessionID != "" {
				payload["sessionId"] = sessionID
			}
			if channelID != "" {
				payload["channelId"] = channelID
			}
			if displayName != "" {
				payload["displayName"] = displayName
			}
			if channelMode {
				payload["channelMode"] = true
			}
			return printResponse(newClient().R().SetBody(payload).Post("/v0/chat"))
		},
	}
	chatCmd.Flags().StringVarP(&userID, "user", "u", "local", "User ID")
	chatCmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to continue")
	chatCmd.Flags().StringVarP(&channelID, "channel", "c", "", "Channel ID")
	chatCmd.Flags().StringVarP(&displayName, "name", "n", "", "Speaker display name")
	chatCmd.Flags().BoolVar(&channelMode, "channel-mode", false, "Treat the turn as a group channel message")
	rootCmd.AddCommand(chatCmd)

	var listPersona, listUser string
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List active chat sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient().R()
			if listPersona != "" {
				req.SetQueryParam("personaName", listPersona)
			}
			if listUser != "" {
				req.SetQueryParam("userId", listUser)
			}
			return printResponse(req.Get("/v0/chat/sessions"))
		},
	}
	sessionsCmd.Flags().StringVarP(&listPersona, "persona", "p", "", "Filter by persona name")
	sessionsCmd.Flags().StringVarP(&listUser, "user", "u", "", "Filter by user ID")
	rootCmd.AddCommand(sessionsCmd)

	var skipMemories bool
	endCmd := &cobra.Command{
		Use:   "end-session SESSION_ID",
		Short: "End a session, distilling long-term memories from it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"sessionId": args[0]}
			if skipMemories {
				payload["extractMemories"] = false
			}
			return printResponse(newClient().R().SetBody(payload).Post("/v0/chat/end-session"))
		},
	}
	endCmd.Flags().BoolVar(&skipMemories, "skip-memories", false, "Delete the session without extracting memories")
	rootCmd.AddCommand(endCmd)

	var errPersona, errContext string
	interpretCmd := &cobra.Command{
		Use:   "interpret-error MESSAGE",
		Short: "Ask the model to explain an error in friendly terms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"errorMessage": args[0]}
			if errContext != "" {
				payload["errorContext"] = errContext
			}
			if errPersona != "" {
				payload["personaName"] = errPersona
			}
			return printResponse(newClient().R().SetBody(payload).Post("/v0/chat/interpret-error"))
		},
	}
	interpretCmd.Flags().StringVarP(&errPersona, "persona", "p", "", "Respond in character as this persona")
	interpretCmd.Flags().StringVar(&errContext, "context", "", "What was being attempted when the error occurred")
	rootCmd.AddCommand(interpretCmd)
}
