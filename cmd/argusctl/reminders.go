package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	dueCmd := &cobra.Command{
		Use:   "due",
		Short: "List scheduled events whose reminder time has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/reminders/due", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	rootCmd.AddCommand(dueCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show event and trigger counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/stats", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	rootCmd.AddCommand(statsCmd)

	// context check
	var urlFlag, titleFlag string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check a URL and page title against scheduled context patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			if urlFlag == "" {
				return fmt.Errorf("--url required")
			}
			data, err := doPostJSON("/api/context-check",
				map[string]string{"url": urlFlag, "title": titleFlag})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	checkCmd.Flags().StringVarP(&urlFlag, "url", "u", "", "Visited URL (required)")
	checkCmd.Flags().StringVarP(&titleFlag, "title", "t", "", "Page title")
	_ = checkCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(checkCmd)

	// ingest
	var senderFlag string
	ingestCmd := &cobra.Command{
		Use:   "ingest CONTENT",
		Short: "Submit a raw message for event extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"content": args[0]}
			if senderFlag != "" {
				payload["sender"] = senderFlag
			}
			data, err := doPostJSON("/api/messages", payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	ingestCmd.Flags().StringVarP(&senderFlag, "sender", "s", "", "Sender name")
	rootCmd.AddCommand(ingestCmd)
}
