package handlers

import (
	"bytes"
	"context"
	"io"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

type stubCatalogService struct {
	categorizeResult services.CategorizeResult
	categorizeErr    error
	categorizeCmd    services.CategorizeItemsCommand
	categorizeCalls  int

	snapshot    services.CatalogSnapshot
	snapshotErr error

	updateItem services.Item
	updateErr  error
	updateCmd  services.UpdateItemRequestsCommand

	videoAsset services.MediaAsset
	videoErr   error
	videoCmd   services.GenerateActionVideoCommand
}

func (s *stubCatalogService) CategorizeItems(_ context.Context, cmd services.CategorizeItemsCommand) (services.CategorizeResult, error) {
	s.categorizeCalls++
	s.categorizeCmd = cmd
	return s.categorizeResult, s.categorizeErr
}

func (s *stubCatalogService) Snapshot(context.Context) (services.CatalogSnapshot, error) {
	return s.snapshot, s.snapshotErr
}

func (s *stubCatalogService) UpdateItemRequests(_ context.Context, cmd services.UpdateItemRequestsCommand) (services.Item, error) {
	s.updateCmd = cmd
	return s.updateItem, s.updateErr
}

func (s *stubCatalogService) GenerateActionVideo(_ context.Context, cmd services.GenerateActionVideoCommand) (services.MediaAsset, error) {
	s.videoCmd = cmd
	return s.videoAsset, s.videoErr
}

type stubMediaService struct {
	signed    services.SignedMedia
	signedErr error
	signedKey services.MediaKey

	data    []byte
	object  services.MediaObject
	openErr error

	speech    services.SpeechResult
	speechErr error
	speechCmd services.GenerateSpeechCommand
}

func (s *stubMediaService) SignedURL(_ context.Context, key services.MediaKey) (services.SignedMedia, error) {
	s.signedKey = key
	return s.signed, s.signedErr
}

func (s *stubMediaService) Open(_ context.Context, key services.MediaKey) (io.ReadCloser, services.MediaObject, error) {
	if s.openErr != nil {
		return nil, services.MediaObject{}, s.openErr
	}
	object := s.object
	object.Key = key
	return io.NopCloser(bytes.NewReader(s.data)), object, nil
}

func (s *stubMediaService) GenerateSpeech(_ context.Context, cmd services.GenerateSpeechCommand) (services.SpeechResult, error) {
	s.speechCmd = cmd
	return s.speech, s.speechErr
}

type stubDetectionService struct {
	item  string
	err   error
	cmd   services.DetectObjectCommand
	calls int
}

func (s *stubDetectionService) DetectObject(_ context.Context, cmd services.DetectObjectCommand) (string, error) {
	s.calls++
	s.cmd = cmd
	return s.item, s.err
}

var (
	_ services.CatalogService   = (*stubCatalogService)(nil)
	_ services.MediaService     = (*stubMediaService)(nil)
	_ services.DetectionService = (*stubDetectionService)(nil)
)
