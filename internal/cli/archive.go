package cli

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"exam-portal-service/internal/config"
	pginfra "exam-portal-service/internal/infra/postgres"
)

// NewArchiveCmd moves old login-attempt rows into the archive table.
func NewArchiveCmd(configPath *string) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "archive-logins",
		Short: "Archive login attempts older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
			db := bun.NewDB(sqldb, pgdialect.New())
			defer db.Close()

			audit := pginfra.NewAuditRepository(db)
			moved, err := audit.ArchiveOlderThan(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			log.Printf("archived %d login attempts", moved)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "archive rows older than this")
	return cmd
}
