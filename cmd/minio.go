package cmd

import (
	"fmt"
	"time"

	"FlowCash/config"
	"FlowCash/storage"

	"github.com/spf13/cobra"
)

var (
	minioList bool
	minioKind string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶检查",
	Long:  `连接MinIO并确保存储桶存在，上传、读取并校验一个测试对象的内容哈希；也可列出已上传的音频与封面。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMinioStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		fmt.Println("MinIO连接成功！")

		if minioList {
			var kind storage.ContentKind
			if minioKind != "" {
				if kind, err = storage.ParseKind(minioKind); err != nil {
					return err
				}
			}
			objects, stats, err := store.List(ctx, kind)
			if err != nil {
				return err
			}
			for _, obj := range objects {
				fmt.Printf("%-6s %s  %10s  %s\n", obj.Kind, obj.Hash,
					storage.FormatSize(obj.Size), obj.LastModified.Format(time.RFC3339))
			}
			fmt.Printf("\n对象数量: %d, 总大小: %s\n", stats.TotalObjects, storage.FormatSize(stats.TotalSize))
			return nil
		}

		if err := store.Check(ctx); err != nil {
			return fmt.Errorf("MinIO读写校验失败: %w", err)
		}
		fmt.Println("MinIO读写校验成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().BoolVarP(&minioList, "list", "l", false, "列出已存储的内容")
	minioCmd.Flags().StringVarP(&minioKind, "kind", "k", "", "只列出指定类型 (audio|cover)")

	minioCmd.Example = `  # 连接与读写校验
  flowcash minio

  # 列出全部音频
  flowcash minio -l -k audio`
}
