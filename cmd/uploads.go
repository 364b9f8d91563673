package cmd

import (
	"context"
	"fmt"

	"youbble/core/intake"
	"youbble/server"
	"youbble/storage"

	"github.com/spf13/cobra"
)

var sweepDelete bool

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "附件存储维护",
}

var uploadsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "查找没有台账记录引用的附件",
	Long: `列出存储中没有任何投稿引用的音频和同意书文件。这些文件来自中途失败的投稿。
默认只报告，加 --delete 才会删除。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ledger, err := server.OpenLedger(ctx, appConfig)
		if err != nil {
			return err
		}
		defer ledger.Close()
		store, err := server.OpenUploads(ctx, appConfig)
		if err != nil {
			return err
		}

		res, err := intake.Sweep(ctx, ledger, store, sweepDelete)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(res.Orphans) == 0 {
			fmt.Fprintln(out, "No orphaned uploads")
			return nil
		}
		fmt.Fprint(out, renderTable([]string{"Path", "Original name", "Result"}, sweepRows(res, sweepDelete), nil))
		if sweepDelete {
			fmt.Fprintf(out, "removed %d of %d orphaned uploads\n", res.Removed, len(res.Orphans))
		} else {
			fmt.Fprintf(out, "%d orphaned uploads, rerun with --delete to remove them\n", len(res.Orphans))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadsCmd)
	uploadsCmd.AddCommand(uploadsSweepCmd)
	uploadsSweepCmd.Flags().BoolVar(&sweepDelete, "delete", false, "删除孤立附件")
}

func sweepRows(res intake.SweepResult, deleted bool) [][]string {
	rows := make([][]string, 0, len(res.Orphans))
	for _, p := range res.Orphans {
		result := "orphaned"
		if deleted {
			result = "removed"
			if err, ok := res.Failed[p]; ok {
				result = "failed: " + err.Error()
			}
		}
		rows = append(rows, []string{p, storage.OriginalName(p), result})
	}
	return rows
}
