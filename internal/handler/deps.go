package handler

import (
	"dmchat/internal/app/chat"
	"dmchat/internal/app/message"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
	"dmchat/internal/pkg/metrics"
)

// AppDeps carries everything the handlers need. Storage is nil when image
// storage is not configured.
type AppDeps struct {
	Hub      *chat.Hub
	Config   *configs.AppConfig
	Storage  storage.StorageService
	Users    *user.Service
	Messages *message.Service
	Metrics  *metrics.Collector
}
