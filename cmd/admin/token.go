package main

import (
	"fmt"

	"github.com/spf13/cobra"

	jwtpkg "furrydomains/backend/internal/auth/jwt"
)

func newTokenCmd(a *app) *cobra.Command {
	var identity jwtpkg.Identity

	cmd := &cobra.Command{
		Use:   "token",
		Short: "令牌管理",
	}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "为租户签发访问令牌（测试与运维使用）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity.UserID == "" {
				return fmt.Errorf("--user is required")
			}
			manager := jwtpkg.NewManager(a.cfg.JWT.Secret, a.cfg.JWT.Issuer, a.cfg.JWT.Expiry)
			token, err := manager.Issue(identity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&identity.UserID, "user", "", "租户 ID")
	issue.Flags().StringVar(&identity.Email, "email", "", "邮箱")
	issue.Flags().StringVar(&identity.Name, "name", "", "显示名")
	issue.Flags().StringVar(&identity.SlackID, "slack", "", "Slack 用户 ID")

	cmd.AddCommand(issue)
	return cmd
}
