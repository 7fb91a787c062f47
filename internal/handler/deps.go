package handler

import (
	"chatrelay/internal/app/chat"
	"chatrelay/internal/configs"
)

// AppDeps bundles the dependencies handlers need.
type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig
}
