package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"youbble/model"
	"youbble/server"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var entriesJSON bool

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "查看比赛投稿台账",
	Long:  `按创建时间列出台账中的全部投稿。台账只追加，不提供修改或删除。`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ledger, err := server.OpenLedger(ctx, appConfig)
		if err != nil {
			return err
		}
		defer ledger.Close()

		entries, err := ledger.List(ctx)
		if err != nil {
			return err
		}
		sortEntries(entries)
		out := cmd.OutOrStdout()
		if entriesJSON {
			return writeIndentedJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No entries yet")
			return nil
		}
		fmt.Fprint(out, renderTable(
			[]string{"ID", "Created", "Artist", "Email", "Song", "Categories", "Paid", "Status"},
			entryRows(entries),
			nil,
		))
		fmt.Fprintf(out, "%d entries\n", len(entries))
		return nil
	},
}

var entriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "查看单条投稿",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ledger, err := server.OpenLedger(ctx, appConfig)
		if err != nil {
			return err
		}
		defer ledger.Close()

		entry, err := ledger.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		return writeIndentedJSON(cmd.OutOrStdout(), entry)
	},
}

func init() {
	rootCmd.AddCommand(entriesCmd)
	entriesCmd.AddCommand(entriesShowCmd)
	entriesCmd.Flags().BoolVar(&entriesJSON, "json", false, "以 JSON 输出")
}

func sortEntries(entries []*model.CompetitionEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

func entryRows(entries []*model.CompetitionEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		categories := make([]string, len(e.Categories))
		for i, c := range e.Categories {
			categories[i] = string(c)
		}
		paid := "no"
		if e.Paid {
			paid = "yes"
		}
		rows = append(rows, []string{
			e.ID,
			humanize.Time(e.CreatedAt),
			e.ArtistName,
			e.Email,
			e.SongTitle,
			strings.Join(categories, ", "),
			paid,
			string(e.Status),
		})
	}
	return rows
}

func writeIndentedJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
