package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/denialdesk/reclaim/internal/audit"
	"github.com/denialdesk/reclaim/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status <claim_id>",
	Short: "Replay the transition log for a claim and print its status",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	claimID := args[0]

	if cfg.Database.URL == "" {
		slog.Error("status requires a database; memory-mode state lives only in the running process")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	log := audit.NewLog(postgres.NewTransitionRepo(db))
	status, transitions, err := log.Replay(ctx, claimID)
	if err != nil {
		slog.Error("Failed to replay transitions", "claim", claimID, "error", err)
		os.Exit(1)
	}
	if len(transitions) == 0 {
		fmt.Printf("claim %s: no history\n", claimID)
		return
	}

	fmt.Printf("claim %s: %s\n\n", claimID, status)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "AT\tFROM\tTO\tACTOR\tREASON")
	for _, tr := range transitions {
		from := string(tr.FromStatus)
		if from == "" {
			from = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tr.Timestamp.Format("2006-01-02 15:04:05"), from, tr.ToStatus, tr.Actor, tr.Reason)
	}
	_ = w.Flush()
}
