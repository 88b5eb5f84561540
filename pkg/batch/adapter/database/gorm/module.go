package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/taxiemissions/pkg/batch/adapter/database"
)

func registerCloseHook(lc fx.Lifecycle, r *GormDBConnectionResolver) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.CloseAll()
		},
	})
}

// Module provides the resolver and the transaction manager factory.
// Dialect modules (sqlite.Module, postgres.Module, mysql.Module) must be added separately.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Provide(NewGormTransactionManagerFactory),
	fx.Invoke(registerCloseHook),
)
