package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"cardflow/internal/job"
)

func newStatusCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show one job or the whole queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cli.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, a.Logger)

			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return err
				}
				snap, err := a.Pipeline.Status(id)
				if err != nil {
					return err
				}
				printJob(cmd, snap)
				return nil
			}
			for _, snap := range a.Store.List() {
				printJobLine(cmd, snap)
			}
			return nil
		},
	}
}

func newRetryCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Re-queue a failed job with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cli.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, a.Logger)

			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			if err := a.Pipeline.Retry(cmd.Context(), id); err != nil {
				return err
			}
			cmd.Printf("job %s re-queued\n", id)
			return nil
		},
	}
}

func newCancelCommand(cli *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Withdraw a job that no worker has claimed yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cli.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQuietly(a, a.Logger)

			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			if !a.Pipeline.CancelIfQueued(cmd.Context(), id) {
				cmd.Printf("job %s is not cancelable\n", id)
				return nil
			}
			cmd.Printf("job %s canceled\n", id)
			return nil
		},
	}
}

func printJob(cmd *cobra.Command, snap job.Job) {
	cmd.Printf("job: %s\n", snap.ID)
	cmd.Printf("  status:   %s (%d%%, attempt %d)\n", snap.Status, snap.Progress, snap.Attempt)
	if snap.Contact != nil {
		cmd.Printf("  contact:  %s / %s <%s>\n", snap.Contact.Name, snap.Contact.Company, snap.Contact.Email)
	}
	if snap.Email != nil {
		cmd.Printf("  subject:  %s\n", snap.Email.Subject)
	}
	if snap.DeliveryID != "" {
		cmd.Printf("  delivery: %s\n", snap.DeliveryID)
	}
	if snap.ErrorMessage != "" {
		cmd.Printf("  error:    %s\n", snap.ErrorMessage)
	}
}

func printJobLine(cmd *cobra.Command, snap job.Job) {
	summary := ""
	if snap.Contact != nil {
		summary = snap.Contact.Name
	}
	cmd.Printf("%s  %-16s %3d%%  %s\n", snap.ID, snap.Status, snap.Progress, summary)
}
