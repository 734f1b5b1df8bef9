package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"FURRYDOMAINS_JWT_SECRET",
	"FURRYDOMAINS_SERVER_HOST",
	"FURRYDOMAINS_SERVER_PORT",
	"FURRYDOMAINS_DATABASE_TYPE",
	"FURRYDOMAINS_DATABASE_DSN",
	"FURRYDOMAINS_CLOUDFLARE_ZONES",
	"FURRYDOMAINS_MAIL_TRANSPORT",
	"FURRYDOMAINS_MAIL_DOMAIN",
	"FURRYDOMAINS_ACCESS_COOLDOWN",
	"FURRYDOMAINS_STORAGE_ACCOUNT_ID",
	"FURRYDOMAINS_STORAGE_ENDPOINT",
	"FURRYDOMAINS_CORS_ALLOWED_ORIGINS",
	"FURRYDOMAINS_LOG_LEVEL",
}

const validSecret = "test-secret-key-for-development-32-chars-long-at-least"

// withCleanEnv 保存并清空相关环境变量，测试结束后恢复
func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string)
	for _, key := range envKeys {
		original[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", validSecret)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "", cfg.Database.Type)
		assert.True(t, cfg.Database.AutoMigrate)
		assert.Equal(t, "hackclubber.dev", cfg.Mail.Domain)
		assert.Equal(t, "mailgun", cfg.Mail.Transport)
		assert.Equal(t, 24*time.Hour, cfg.Access.Cooldown)
		assert.Equal(t, 30*24*time.Hour, cfg.Access.PurgeAge)
		assert.Equal(t, 6*time.Hour, cfg.Access.PurgeInterval)
		assert.Equal(t, time.Hour, cfg.ObjectStore.PresignExpiry)
		assert.Equal(t, 6, cfg.Links.CodeLength)
		assert.Equal(t, 10*time.Second, cfg.Cloudflare.Timeout)
		assert.Empty(t, cfg.Cloudflare.Zones)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", validSecret)
		os.Setenv("FURRYDOMAINS_SERVER_PORT", "9090")
		os.Setenv("FURRYDOMAINS_DATABASE_TYPE", "SQLite")
		os.Setenv("FURRYDOMAINS_DATABASE_DSN", "data/test.db")
		os.Setenv("FURRYDOMAINS_CLOUDFLARE_ZONES", "is-a-furry.dev=zone1, furries.club=zone2")
		os.Setenv("FURRYDOMAINS_MAIL_TRANSPORT", "smtp")
		os.Setenv("FURRYDOMAINS_ACCESS_COOLDOWN", "1h")
		os.Setenv("FURRYDOMAINS_STORAGE_ACCOUNT_ID", "acct")
		os.Setenv("FURRYDOMAINS_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Type)
		assert.Equal(t, "data/test.db", cfg.Database.DSN)
		assert.Equal(t, map[string]string{"is-a-furry.dev": "zone1", "furries.club": "zone2"}, cfg.Cloudflare.Zones)
		assert.Equal(t, "smtp", cfg.Mail.Transport)
		assert.Equal(t, time.Hour, cfg.Access.Cooldown)
		assert.Equal(t, "acct.r2.cloudflarestorage.com", cfg.ObjectStore.Endpoint)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
	})

	t.Run("JWT密钥太短失败", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", "short-key")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("使用默认JWT密钥失败", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", defaultJWTSecret)

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "default value")
	})

	t.Run("无效的时长格式失败", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", validSecret)
		os.Setenv("FURRYDOMAINS_ACCESS_COOLDOWN", "tomorrow")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "access.cooldown")
	})

	t.Run("zone 映射格式错误失败", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", validSecret)
		os.Setenv("FURRYDOMAINS_CLOUDFLARE_ZONES", "is-a-furry.dev")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("不支持的数据库类型失败", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("FURRYDOMAINS_JWT_SECRET", validSecret)
		os.Setenv("FURRYDOMAINS_DATABASE_TYPE", "oracle")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a , ,b,"))
	assert.Empty(t, parseList(" , "))
}
