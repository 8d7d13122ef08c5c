package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/denialdesk/reclaim/internal/core/domain"
)

var serverURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Submit a rejection export file to the running pipeline",
	Long:  `Reads a payer rejection export (.csv or .json) and posts it to the pipeline's batch intake endpoint.`,
	Args:  cobra.ExactArgs(1),
	Run:   runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "base URL of the running pipeline")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	loadConfig()

	rows, err := readRows(args[0])
	if err != nil {
		slog.Error("Failed to read export file", "file", args[0], "error", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		slog.Error("Export file contains no rows", "file", args[0])
		os.Exit(1)
	}

	body, err := json.Marshal(rows)
	if err != nil {
		slog.Error("Failed to encode batch", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(serverURL+"/api/batches", "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to reach pipeline", "server", serverURL, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		slog.Error("Batch rejected", "status", resp.StatusCode, "body", string(out))
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func readRows(path string) ([]domain.RawRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var rows []domain.RawRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("invalid json export: %w", err)
		}
		return rows, nil
	case ".csv":
		return parseCSV(data)
	default:
		return nil, fmt.Errorf("unsupported export format %q", filepath.Ext(path))
	}
}

// parseCSV maps header columns onto raw rows. Unknown columns are ignored
// so payers can append fields without breaking imports.
func parseCSV(data []byte) ([]domain.RawRow, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid csv export: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	idx := make(map[string]int)
	for i, col := range records[0] {
		idx[strings.TrimSpace(strings.ToLower(col))] = i
	}

	field := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rows := make([]domain.RawRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, domain.RawRow{
			ClaimID:       field(rec, "claim_id"),
			PayerCode:     field(rec, "payer_code"),
			RejectionCode: field(rec, "rejection_code"),
			RejectionDate: field(rec, "rejection_date"),
			Amount:        field(rec, "amount"),
			Branch:        field(rec, "branch"),
			RawSource:     strings.Join(rec, ","),
		})
	}
	return rows, nil
}
