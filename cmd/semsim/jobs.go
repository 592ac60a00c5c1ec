package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ukaji3/semsim-go/pkg/semsim/jobs"
)

var (
	jobsLimit int
	jobID     string
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded scoring jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobs,
	}
	cmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum number of jobs to list")
	cmd.Flags().StringVar(&jobID, "id", "", "Show a single job as JSON")
	return cmd
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, _, closer, err := setup(false)
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := jobs.NewStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	if jobID != "" {
		rec, err := store.Get(jobID)
		if err != nil {
			return err
		}
		data, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	recs, err := store.Recent(jobsLimit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATE\tSCORED\tSKIPPED\tINPUT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.State, r.Scored, r.Skipped, r.Input)
	}
	return tw.Flush()
}
