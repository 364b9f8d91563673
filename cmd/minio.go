package cmd

import (
	"context"
	"fmt"

	"youbble/server"
	"youbble/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的附件，支持列出文件、查看分类统计、按前缀删除。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := context.Background()
		mcfg := server.MinioConfig(appConfig)
		fmt.Fprintf(out, "MinIO配置: %s, Bucket: %s\n", mcfg.Endpoint, mcfg.Bucket)

		store, err := storage.NewMinioStore(ctx, mcfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		fmt.Fprintf(out, "MinIO连接成功！bucket %s ready\n", store.Bucket())

		switch {
		case minioDelete:
			n, err := store.DeletePrefix(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Fprintf(out, "deleted %d objects under %s\n", n, minioPrefix)
		case minioStats:
			stats, err := store.Stats(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("获取存储桶统计信息失败: %w", err)
			}
			fmt.Fprint(out, renderTable([]string{"Category", "Objects", "Size"}, statsRows(stats), []columnAlignment{alignLeft, alignRight, alignRight}))
			if !stats.LastModified.IsZero() {
				fmt.Fprintf(out, "last upload %s\n", humanize.Time(stats.LastModified))
			}
		default:
			objects, err := store.Objects(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("列出文件失败: %w", err)
			}
			rows := make([][]string, 0, len(objects))
			for _, o := range objects {
				rows = append(rows, []string{o.Key, humanize.Bytes(uint64(o.Size)), o.LastModified.Format("2006-01-02 15:04")})
			}
			fmt.Fprint(out, renderTable([]string{"Key", "Size", "Modified"}, rows, []columnAlignment{alignLeft, alignRight}))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要删除的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "按附件分类显示统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定前缀下的所有对象")

	minioCmd.Example = `  # 列出所有附件
  youbble_server minio

  # 只看音频
  youbble_server minio -p "audio/"

  # 分类统计
  youbble_server minio -s

  # 删除同意书目录
  youbble_server minio -d -p "consents/"`
}

func statsRows(stats storage.BucketStats) [][]string {
	rows := make([][]string, 0, len(stats.ByCategory)+1)
	for _, name := range stats.Categories() {
		c := stats.ByCategory[name]
		rows = append(rows, []string{name, fmt.Sprint(c.Objects), humanize.Bytes(uint64(c.Size))})
	}
	rows = append(rows, []string{"total", fmt.Sprint(stats.TotalObjects), humanize.Bytes(uint64(stats.TotalSize))})
	return rows
}
