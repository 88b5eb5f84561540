// Package mysql registers the MySQL dialect.
package mysql

import (
	"fmt"

	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/taxiemissions/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a go-sql-driver DSN. Timestamps are parsed into time.Time in UTC.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	auth := c.User
	if c.Password != "" {
		auth += ":" + c.Password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC", auth, c.Host, c.Port, c.Database)
}

// NewProvider returns the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "mysql")
}

// Module adds the MySQL provider to the db_providers group.
var Module = fx.Provide(
	fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
	),
)
