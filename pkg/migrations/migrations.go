package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var embedded embed.FS

// MigrateStore applies the schema migrations. When folder is empty the
// migrations compiled into the binary are used.
func MigrateStore(db *gorm.DB, dbType string, folder string) error {
	goose.SetLogger(&logger{})

	var (
		migrationsFS fs.FS = embedded
		dir                = "sql"
	)
	if folder != "" {
		fi, err := os.Stat(folder)
		if err != nil {
			return err
		}
		if !fi.Mode().IsDir() {
			return fmt.Errorf("failed to open migration folder: %s is not a folder", folder)
		}
		migrationsFS = os.DirFS(folder)
		dir = "."
	}
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect(dialect(dbType)); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return goose.Up(sqlDB, dir)
}

func dialect(dbType string) string {
	if dbType == "pgsql" {
		return "postgres"
	}
	return "sqlite3"
}

// logger adapts zap to goose.Logger.
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) { zap.S().Named("migrations").Infof(format, v...) }
func (m *logger) Fatalf(format string, v ...interface{}) { zap.S().Named("migrations").Fatalf(format, v...) }
