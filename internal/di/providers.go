package di

import (
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"taskhub/internal/config"
	"taskhub/internal/realtime"
)

// App bundles everything the server main needs.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Feed   *realtime.Feed
	Router *mux.Router
}

func ProvideFeed(cfg *config.Config) *realtime.Feed {
	return realtime.NewFeed(cfg.Realtime.ChannelBufferSize)
}
