package main

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"furrydomains/backend/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dbType, dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移（postgres / mysql）",
	}
	cmd.PersistentFlags().StringVar(&dbType, "type", "", "数据库类型，默认读取配置")
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "数据库连接字符串，默认读取配置")

	run := func(action func(db *sql.DB, dir string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if dbType == "" {
				dbType = a.cfg.Database.Type
			}
			if dsn == "" {
				dsn = a.cfg.Database.DSN
			}
			if dbType != "postgres" && dbType != "mysql" {
				return fmt.Errorf("unsupported database type %q (postgres or mysql)", dbType)
			}
			if dsn == "" {
				return fmt.Errorf("database DSN is required")
			}

			db, err := sql.Open(dbType, dsn)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect(dbType); err != nil {
				return err
			}
			a.log.Info("running migration", zap.String("database", dbType), zap.String("command", cmd.Name()))
			return action(db, dbType)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "升级到最新版本",
			RunE:  run(func(db *sql.DB, dir string) error { return goose.Up(db, dir) }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "回滚一个版本",
			RunE:  run(func(db *sql.DB, dir string) error { return goose.Down(db, dir) }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "查看迁移状态",
			RunE:  run(func(db *sql.DB, dir string) error { return goose.Status(db, dir) }),
		},
	)
	return cmd
}
