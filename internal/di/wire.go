//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"taskhub/internal/api"
	"taskhub/internal/backend"
	"taskhub/internal/config"
	"taskhub/internal/store"
)

// This is just a declaration — wire will generate the real body
func InitializeApp() (*App, error) {
	wire.Build(
		config.LoadConfig,
		store.NewMySQL,
		store.NewMessageRepository,
		store.NewNotificationRepository,
		store.NewProfileRepository,
		store.NewTodoRepository,
		ProvideFeed,
		backend.NewService,
		api.NewHandler,
		api.NewRouter,
		wire.Struct(new(App), "*"),
	)
	return &App{}, nil
}
