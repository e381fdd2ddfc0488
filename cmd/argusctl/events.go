package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	eventsCmd := &cobra.Command{Use: "events", Short: "Event operations"}

	// list
	var statusFlag string
	var limitFlag, offsetFlag int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List events, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := map[string]string{}
			if statusFlag != "" {
				query["status"] = statusFlag
			}
			if limitFlag > 0 {
				query["limit"] = fmt.Sprintf("%d", limitFlag)
			}
			if offsetFlag > 0 {
				query["offset"] = fmt.Sprintf("%d", offsetFlag)
			}
			data, err := doGet("/api/events", query)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	listCmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Filter by status")
	listCmd.Flags().IntVarP(&limitFlag, "limit", "l", 0, "Max events to return")
	listCmd.Flags().IntVarP(&offsetFlag, "offset", "o", 0, "Offset into the result set")
	eventsCmd.AddCommand(listCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get EVENT_ID",
		Short: "Get event by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/events/"+args[0], nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	eventsCmd.AddCommand(getCmd)

	// approve
	approveCmd := &cobra.Command{
		Use:   "approve EVENT_ID",
		Short: "Approve a discovered event for scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/events/"+args[0]+"/approve", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	eventsCmd.AddCommand(approveCmd)

	// snooze
	var minutesFlag int
	snoozeCmd := &cobra.Command{
		Use:   "snooze EVENT_ID",
		Short: "Snooze an event's reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/events/"+args[0]+"/snooze",
				map[string]interface{}{"minutes": minutesFlag})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	snoozeCmd.Flags().IntVarP(&minutesFlag, "minutes", "m", 30, "Snooze duration in minutes")
	eventsCmd.AddCommand(snoozeCmd)

	// complete
	completeCmd := &cobra.Command{
		Use:   "complete EVENT_ID",
		Short: "Mark an event completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/events/"+args[0]+"/complete", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	eventsCmd.AddCommand(completeCmd)

	// ignore
	ignoreCmd := &cobra.Command{
		Use:   "ignore EVENT_ID",
		Short: "Permanently opt an event out of reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON("/api/events/"+args[0]+"/ignore", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	eventsCmd.AddCommand(ignoreCmd)

	// delete
	deleteCmd := &cobra.Command{
		Use:   "delete EVENT_ID",
		Short: "Delete an event and its triggers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := doDelete("/api/events/" + args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, "deleted")
			return nil
		},
	}
	eventsCmd.AddCommand(deleteCmd)

	// conflicts
	conflictsCmd := &cobra.Command{
		Use:   "conflicts EVENT_ID",
		Short: "Show events double-booked against an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/events/"+args[0]+"/conflicts", nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	eventsCmd.AddCommand(conflictsCmd)

	// day
	dayCmd := &cobra.Command{
		Use:   "day TIMESTAMP",
		Short: "List active timed events in the UTC day containing TIMESTAMP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet("/api/events/day/"+args[0], nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	eventsCmd.AddCommand(dayCmd)

	rootCmd.AddCommand(eventsCmd)
}
