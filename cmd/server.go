package cmd

import (
	"Melodeck/server"

	"github.com/spf13/cobra"
)

var serveAddr string

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "启动Melodeck服务器",
	Long:    `启动Melodeck的HTTP服务器，提供REST API、媒体文件和曲库WebSocket推送`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}
		return server.Start(cmd.Context(), cfg)
	},
}

func init() {
	serverCmd.Flags().StringVar(&serveAddr, "addr", "", "监听地址，覆盖 HTTP_ADDR")
	rootCmd.AddCommand(serverCmd)
}
