package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vadiminshakov/autotrade/config"
	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/storage/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	JournalDir string
	Account    string
	After      uint64
	JSON       bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the journal of trade actions",
		Long: `Prints accepted, confirmed and submitted trade offers recorded by the
workers, failed attempts included.

Examples:
  autotrade history
  autotrade history --account alice --after 120
  autotrade history --journal ./wal/actions --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.JournalDir, "journal", "", "journal directory (defaults to journal_dir from config)")
	cmd.Flags().StringVar(&opts.Account, "account", "", "only show actions of this account")
	cmd.Flags().Uint64Var(&opts.After, "after", 0, "only show entries after this journal index")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print entries as JSON lines")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	dir := opts.JournalDir
	if dir == "" {
		dir = config.DefaultJournalDir
		if cfg, err := loadConfig(opts.RootOptions); err == nil {
			dir = cfg.JournalDir
		}
	}

	store, err := journal.NewWALStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.EntriesAfter(opts.After, opts.Account)
	if err != nil {
		return errors.Wrap(err, "read action journal")
	}

	if opts.JSON {
		return printHistoryJSON(cmd.OutOrStdout(), entries)
	}
	return printHistoryText(cmd.OutOrStdout(), entries)
}

func printHistoryJSON(w io.Writer, entries []domain.ActionRecordEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		line := struct {
			Index uint64 `json:"index"`
			domain.ActionRecord
		}{Index: e.Index, ActionRecord: e.Record}
		if err := enc.Encode(line); err != nil {
			return errors.Wrap(err, "encode entry")
		}
	}
	return nil
}

func printHistoryText(w io.Writer, entries []domain.ActionRecordEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No actions recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTIME\tACCOUNT\tACTION\tOFFER\tITEMS\tVALUE\tRESULT")
	for _, e := range entries {
		r := e.Record
		result := "ok"
		if r.Error != "" {
			result = "error: " + r.Error
		}
		action := string(r.Kind)
		if r.Role != "" {
			action += "/" + string(r.Role)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Index,
			r.Time.UTC().Format(time.RFC3339),
			r.Account,
			action,
			dash(r.TradeOfferID),
			dash(strings.Join(r.ItemIDs, ",")),
			r.Value.StringFixed(2),
			result,
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
