package cmd

import (
	"fmt"
	"io"

	"Melodeck/storage"

	"github.com/spf13/cobra"
)

var (
	storagePrefix string
	storageStats  bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "媒体存储管理",
	Long:  `查看媒体存储（本地目录或MinIO存储桶）中的文件，支持按前缀列出文件和查看统计信息。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("无法打开媒体存储: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "存储后端: %s\n", cfg.StorageBackend)

		if storageStats {
			stats, err := storage.Stats(cmd.Context(), store, storagePrefix)
			if err != nil {
				return fmt.Errorf("获取统计信息失败: %w", err)
			}
			printStats(out, stats)
			return nil
		}

		objects, err := store.List(cmd.Context(), storagePrefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}
		fmt.Fprintf(out, "\n列出文件 (前缀: %q)...\n", storagePrefix)
		for _, obj := range objects {
			fmt.Fprintf(out, "%-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintf(out, "共 %d 个文件\n", len(objects))
		return nil
	},
}

func printStats(w io.Writer, stats *storage.BucketStats) {
	fmt.Fprintf(w, "文件总数: %d\n", stats.TotalObjects)
	fmt.Fprintf(w, "总大小: %s\n", storage.FormatSize(stats.TotalSize))
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	}
	for kind, n := range stats.ByType {
		fmt.Fprintf(w, "  %-8s %d\n", kind, n)
	}
}

func init() {
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "只显示该前缀下的文件，例如 songs/")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "显示统计信息")
	rootCmd.AddCommand(storageCmd)
}
