package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pozgpt/chat/internal/config"
	"github.com/pozgpt/chat/internal/logger"
)

var (
	userFlag string
	chatFlag string
	rootCmd  = &cobra.Command{
		Use:   "chatctl",
		Short: "CLI client for the chat conversation core",
	}
)

func main() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID")

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user and its record",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			gender, _ := cmd.Flags().GetString("gender")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password required")
			}
			return runRegister(cmd.Context(), email, password, name, gender, os.Stdout)
		},
	}
	registerCmd.Flags().StringP("email", "e", "", "Email address (required)")
	registerCmd.Flags().StringP("password", "p", "", "Password (required)")
	registerCmd.Flags().String("name", "", "Display name")
	registerCmd.Flags().String("gender", "", "Gender")
	rootCmd.AddCommand(registerCmd)

	sendCmd := &cobra.Command{
		Use:   "send [text]",
		Short: "Send a turn to the active conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runSend(cmd.Context(), userFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(sendCmd)

	newChatCmd := &cobra.Command{
		Use:   "new-chat",
		Short: "Archive the current conversation if it has messages and start a fresh one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runNewChat(cmd.Context(), userFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(newChatCmd)

	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Switch the active conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" || chatFlag == "" {
				return fmt.Errorf("--user and --chat required")
			}
			return runSwitch(cmd.Context(), userFlag, chatFlag, os.Stdout)
		},
	}
	switchCmd.Flags().StringVarP(&chatFlag, "chat", "c", "", "Conversation ID (required)")
	rootCmd.AddCommand(switchCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's conversations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" {
				return fmt.Errorf("--user required")
			}
			return runList(cmd.Context(), userFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(listCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print a conversation's messages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" || chatFlag == "" {
				return fmt.Errorf("--user and --chat required")
			}
			return runHistory(cmd.Context(), userFlag, chatFlag, os.Stdout)
		},
	}
	historyCmd.Flags().StringVarP(&chatFlag, "chat", "c", "", "Conversation ID (required)")
	rootCmd.AddCommand(historyCmd)

	deleteChatCmd := &cobra.Command{
		Use:   "delete-chat",
		Short: "Delete a conversation and its messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userFlag == "" || chatFlag == "" {
				return fmt.Errorf("--user and --chat required")
			}
			return runDeleteChat(cmd.Context(), userFlag, chatFlag, os.Stdout)
		},
	}
	deleteChatCmd.Flags().StringVarP(&chatFlag, "chat", "c", "", "Conversation ID (required)")
	rootCmd.AddCommand(deleteChatCmd)

	deleteAccountCmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete a user's conversations, record, and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if userFlag == "" || password == "" {
				return fmt.Errorf("--user and --password required")
			}
			return runDeleteAccount(cmd.Context(), userFlag, password, os.Stdout)
		},
	}
	deleteAccountCmd.Flags().StringP("password", "p", "", "Password for re-authentication (required)")
	rootCmd.AddCommand(deleteAccountCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig parses the environment once per invocation.
func loadConfig() (*config.Config, error) {
	log := logger.New("chatctl")
	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return nil, err
	}
	return cfg, nil
}
