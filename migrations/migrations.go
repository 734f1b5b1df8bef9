// Package migrations 内嵌 goose SQL 迁移文件，按数据库类型分目录。
package migrations

import "embed"

// FS 包含 postgres/ 与 mysql/ 两个目录
//
//go:embed postgres/*.sql mysql/*.sql
var FS embed.FS
