package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/aholstad/berth/internal/backup"
	"github.com/aholstad/berth/internal/docker"
)

var (
	backupDir    string
	backupKeep   int
	backupUpload bool
	backupBucket string
	backupPrefix string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the project's config and volume data",
	Long: `Backup writes a timestamped tar.gz containing the normalized project
file and the contents of every named volume. With --upload the archive is also
copied to an S3 bucket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if backupUpload && backupBucket == "" {
			return fmt.Errorf("--upload requires --bucket")
		}

		mgr, err := docker.NewManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		opts := backup.Options{Dir: backupDir, Keep: backupKeep, Prefix: backupPrefix}
		if backupUpload {
			up, err := backup.NewS3Uploader(ctx, backupBucket)
			if err != nil {
				return err
			}
			opts.Uploader = up
		}

		target, size, err := backup.New(cfg, mgr).Run(ctx, opts)
		if err != nil {
			return err
		}

		if j := openJournal(); j != nil {
			defer j.Close()
			detail := fmt.Sprintf("%s (%s)", filepath.Base(target), units.HumanSize(float64(size)))
			if err := j.Record(ctx, cfg.Name, "", "backup", detail); err != nil {
				fmt.Println("warning:", err)
			}
		}

		fmt.Printf("Wrote %s (%s)\n", target, units.HumanSize(float64(size)))
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "backups", "directory to write archives to")
	backupCmd.Flags().IntVar(&backupKeep, "keep", 0, "keep only the newest N archives (0 keeps all)")
	backupCmd.Flags().BoolVar(&backupUpload, "upload", false, "upload the archive to S3 after writing it")
	backupCmd.Flags().StringVar(&backupBucket, "bucket", "", "S3 bucket for --upload")
	backupCmd.Flags().StringVar(&backupPrefix, "prefix", "", "key prefix for uploaded archives")
	rootCmd.AddCommand(backupCmd)
}
