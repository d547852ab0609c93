package api

import (
	"context"

	"cdpsnap/internal/config"
	"cdpsnap/internal/logger"
	"cdpsnap/internal/service"
	"cdpsnap/internal/storage"
	"cdpsnap/pkg/model"
)

// Service 服务接口
type Service interface {
	// ListTargets 列出页面目标
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)

	// Capture 捕获目标页面中带 marker 属性的元素子树
	Capture(ctx context.Context, target model.TargetID, marker string) (*model.CaptureResult, error)

	// PlaceMarker 给 selector 选中的元素设置随机 marker，返回 marker 值
	PlaceMarker(ctx context.Context, target model.TargetID, selector string) (string, error)

	// RemoveMarker 移除 marker 属性
	RemoveMarker(ctx context.Context, target model.TargetID, marker string) error

	// History 最近的捕获记录
	History(ctx context.Context, limit int) ([]storage.CaptureRecord, error)

	// Events 捕获事件流
	Events() <-chan model.Event

	// Close 释放所有附加与存储
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) (Service, error) {
	return service.New(service.Options{Config: cfg, Logger: l})
}
