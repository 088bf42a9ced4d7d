// Package migrations applies the embedded SQL scripts in version order.
package migrations

import "embed"

// FS 内嵌的迁移脚本，文件名格式 NNN_name.sql
//
//go:embed scripts/*.sql
var FS embed.FS
