package cmd

import (
	"youbble/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动服务器",
	Long:  `启动比赛投稿与站点 API 的 HTTP 服务器，并托管前端页面`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(appConfig)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
