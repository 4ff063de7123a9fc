package mysql

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Dialector returns the MySQL dialector. Indexed varchar columns default to
// 191 characters so utf8mb4 keys fit the InnoDB prefix limit.
func Dialector(dsn string) gorm.Dialector {
	return mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize:         191,
	})
}
