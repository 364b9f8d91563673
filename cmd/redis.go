package cmd

import (
	"context"
	"fmt"

	"youbble/cache"
	"youbble/db"

	"github.com/spf13/cobra"
)

var redisIntent string

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功并进行基本读写操作；指定 --intent 时查询已签发的支付句柄记录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg := appConfig
		ctx := context.Background()
		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer client.Close()
		fmt.Fprintln(out, "Redis连接成功！")

		if err := db.TestRedis(ctx, client); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Fprintln(out, "Redis基本操作测试成功！")

		if redisIntent == "" {
			return nil
		}
		intent, err := cache.NewIntentLog(client, cfg.IntentTTL).Lookup(ctx, redisIntent)
		if err != nil {
			return err
		}
		if intent == nil {
			fmt.Fprintf(out, "no record for %s (never issued or expired)\n", redisIntent)
			return nil
		}
		fmt.Fprint(out, renderTable(
			[]string{"Handle", "Amount", "Currency", "Placeholder", "Issued"},
			[][]string{{
				intent.Handle,
				fmt.Sprintf("%.2f", intent.Amount),
				intent.Currency,
				fmt.Sprintf("%t", intent.Placeholder),
				intent.IssuedAt.Format("2006-01-02 15:04:05"),
			}},
			[]columnAlignment{alignLeft, alignRight},
		))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().StringVar(&redisIntent, "intent", "", "查询一个已签发的支付句柄")
}
