package repository

import (
	"strings"

	"gorm.io/gorm"
)

// dbDialectName 获取数据库方言名称，默认按 sqlite 处理。
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	name := strings.ToLower(strings.TrimSpace(db.Dialector.Name()))
	if name == "" {
		return "sqlite"
	}
	return name
}

// dayBucketExpr 构建按天聚合表达式，兼容 sqlite 与 postgres。
func dayBucketExpr(db *gorm.DB, column string) string {
	return dayBucketExprByDialect(dbDialectName(db), column)
}

func dayBucketExprByDialect(dialect, column string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql":
		return "to_char(" + column + ", 'YYYY-MM-DD')"
	default:
		return "CAST(date(" + column + ") AS TEXT)"
	}
}
