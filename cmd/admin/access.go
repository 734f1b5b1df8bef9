package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"furrydomains/backend/internal/service"
	"furrydomains/backend/internal/storage/postgres"
)

func newAccessCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "webmail 访问申请管理",
	}
	purge := &cobra.Command{
		Use:   "purge",
		Short: "立即清理过期的已拒绝申请",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := postgres.DefaultOptions()
			opts.AutoMigrate = false

			var (
				store *postgres.Store
				err   error
			)
			switch a.cfg.Database.Type {
			case "postgres":
				store, err = postgres.NewStore(a.cfg.Database.DSN, opts)
			case "mysql":
				store, err = postgres.NewMySQLStore(a.cfg.Database.DSN, opts)
			case "sqlite":
				store, err = postgres.NewSQLiteStore(a.cfg.Database.DSN, opts)
			default:
				return fmt.Errorf("access purge needs a persistent database, got %q", a.cfg.Database.Type)
			}
			if err != nil {
				return err
			}
			defer store.Close()

			// 清理不需要通知 Slack
			access := service.NewAccessService(store, nil, a.cfg.Access, a.cfg.Slack.AdminUserID, nil, a.log)
			n, err := access.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已清理 %d 条申请\n", n)
			return nil
		},
	}
	cmd.AddCommand(purge)
	return cmd
}
