package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/dbops/internal/backup"
	"github.com/systmms/dbops/internal/config"
	"github.com/systmms/dbops/internal/metrics"
	"github.com/systmms/dbops/internal/secure"
)

// NewBackupCommand creates the backup command
func NewBackupCommand(cfg *config.Config) *cobra.Command {
	return newBackupCommand(cfg, deps{})
}

func newBackupCommand(cfg *config.Config, d deps) *cobra.Command {
	var (
		dir      string
		noUpload bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Dump the database to a timestamped SQL file",
		Long: `Backup runs mysqldump (or pg_dump) inside the database container and writes
the output to <dir>/<database>_backup_<YYYYMMDDHHMMSS>.sql.

The database password is passed to the dump tool through the container
environment, never on its command line. When backup.upload.bucket is set the
finished file is also copied to S3.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := d.withDefaults()

			if err := loadConfig(cfg); err != nil {
				return err
			}
			def := cfg.Definition

			if dir != "" {
				def.Backup.Dir = dir
			}

			password := secure.FromString(def.Database.Password)
			defer password.Destroy()

			dumper := backup.NewDumper(backup.Options{
				DatabaseType: def.DatabaseType(),
				Container:    def.Database.Container,
				Database:     def.Database.Name,
				User:         def.Database.User,
				Password:     password,
				Dir:          def.Backup.Dir,
			}, d.executor, cfg.Logger)

			rec := metrics.NewRecorder()
			defer writeMetrics(cfg, rec, cfg.MetricsTextfile)

			ctx := commandContext(cmd)
			result, err := dumper.Backup(ctx)
			if err != nil {
				rec.RecordBackup(def.Database.Name, false, 0, 0)
				return fmt.Errorf("error backing up database: %w", err)
			}
			rec.RecordBackup(def.Database.Name, true, result.Size, result.Duration)

			fmt.Fprintf(d.stdout, "Backup created: %s\n", result.Path)
			cfg.Logger.Debug("Dump of %s took %v (%d bytes)", def.Database.Name, result.Duration.Round(time.Millisecond), result.Size)

			upload := def.Backup.Upload
			if noUpload || upload.Bucket == "" {
				return nil
			}

			uploader, err := backup.NewUploader(ctx, upload, cfg.Logger)
			if err != nil {
				return err
			}
			key, err := uploader.Upload(ctx, result.Path)
			if err != nil {
				return err
			}
			cfg.Logger.Info("Uploaded to s3://%s/%s", upload.Bucket, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Backup directory (overrides backup.dir and BACKUP_DIR)")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "Skip the S3 upload even if backup.upload.bucket is set")

	return cmd
}
