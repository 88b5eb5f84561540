package storage

import (
	"context"

	"go.uber.org/fx"
)

func registerCloseHook(lc fx.Lifecycle, r *ConnectionResolver) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return r.CloseAll()
		},
	})
}

// Module provides the StorageConnectionResolver. Provider modules (local.Module, gcs.Module)
// must be added separately.
var Module = fx.Options(
	fx.Provide(NewConnectionResolver),
	fx.Provide(func(r *ConnectionResolver) StorageConnectionResolver { return r }),
	fx.Invoke(registerCloseHook),
)
