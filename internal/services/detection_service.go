package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	detectionInstruction = "Identify the single most prominent physical item in this image. Respond with only the item's common name in lowercase, with no punctuation or explanation."
	// MaxDetectionImageBytes bounds uploads accepted by DetectObject.
	MaxDetectionImageBytes = 10 << 20
)

// ErrNoDetection is returned when the vision model produced no usable answer.
var ErrNoDetection = errors.New("detection: model returned no item")

// DetectionServiceDeps bundles the collaborators of the detection service.
type DetectionServiceDeps struct {
	Vision ImageDescriber
	Logger func(context.Context, string, map[string]any)
}

type detectionService struct {
	vision ImageDescriber
	logger func(context.Context, string, map[string]any)
}

// NewDetectionService constructs the object detection service.
func NewDetectionService(deps DetectionServiceDeps) (DetectionService, error) {
	if deps.Vision == nil {
		return nil, errors.New("detection service: vision client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &detectionService{vision: deps.Vision, logger: logger}, nil
}

func (s *detectionService) DetectObject(ctx context.Context, cmd DetectObjectCommand) (string, error) {
	if len(cmd.Image) == 0 {
		return "", fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if len(cmd.Image) > MaxDetectionImageBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidInput, MaxDetectionImageBytes)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, cmd.ContentType)
	}

	answer, err := s.vision.DescribeImage(ctx, detectionInstruction, contentType, cmd.Image)
	if err != nil {
		return "", fmt.Errorf("detect object: %w", err)
	}
	item := strings.ToLower(strings.TrimSpace(answer))
	item = strings.Trim(item, ".!\"'`")
	item = strings.TrimSpace(item)
	if item == "" {
		return "", ErrNoDetection
	}
	s.logger(ctx, "detection.completed", map[string]any{"item": item, "bytes": len(cmd.Image)})
	return item, nil
}
