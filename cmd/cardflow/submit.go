package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cardflow/internal/ingest"
	"cardflow/internal/job"
)

func newSubmitCommand(cli *cliContext) *cobra.Command {
	var (
		mimeType    string
		enqueueOnly bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <image>",
		Short: "Submit a card image and process it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := cli.build(ctx)
			if err != nil {
				return err
			}
			defer closeQuietly(a, a.Logger)

			path := args[0]
			if mimeType == "" {
				mimeType = ingest.MIMEForPath(path)
			}
			id, err := a.Pipeline.Submit(ctx, path, mimeType)
			if err != nil {
				return err
			}
			cmd.Printf("job %s queued\n", id)
			if enqueueOnly {
				return nil
			}

			// One-shot mode: drive the pipeline until this job settles.
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			done := make(chan struct{})
			go func() {
				defer close(done)
				a.Pipeline.Run(runCtx)
			}()
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				snap, err := a.Pipeline.Status(id)
				if err != nil {
					cancel()
					<-done
					return err
				}
				if snap.Status.IsTerminal() {
					cancel()
					<-done
					printJob(cmd, snap)
					if snap.Status == job.StatusFailed {
						return fmt.Errorf("job failed: %s", snap.ErrorMessage)
					}
					return nil
				}
				select {
				case <-runCtx.Done():
					<-done
					return fmt.Errorf("timed out waiting for job %s", id)
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&mimeType, "mime", "", "image MIME type (derived from extension when empty)")
	cmd.Flags().BoolVar(&enqueueOnly, "enqueue-only", false, "queue the job for a running daemon instead of processing now")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "max time to wait in one-shot mode")
	return cmd
}
