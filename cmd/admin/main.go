package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/logger"
)

// app 子命令共享的配置与日志
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "admin",
		Short:         "furrydomains 运维命令",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg, a.log = cfg, log
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(a), newTokenCmd(a), newAccessCmd(a))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
