package transport

import (
	"github.com/yurufuwayuya/visual-prompt-builder/internal/pkg/storage"
	"github.com/yurufuwayuya/visual-prompt-builder/internal/service"
)

type ImageHandler struct {
	service service.ImageService
}

func NewImageHandler(service service.ImageService) *ImageHandler {
	return &ImageHandler{service: service}
}

type GenerationHandler struct {
	service service.GenerationService
	// Development responses include the error type and cause.
	production bool
}

func NewGenerationHandler(service service.GenerationService, production bool) *GenerationHandler {
	return &GenerationHandler{service: service, production: production}
}

type ObjectHandler struct {
	storage storage.ObjectStorage
}

func NewObjectHandler(storage storage.ObjectStorage) *ObjectHandler {
	return &ObjectHandler{storage: storage}
}
