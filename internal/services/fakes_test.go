package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/generators"
	pstorage "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/storage"
)

type repoError struct {
	msg         string
	notFound    bool
	unavailable bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return false }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

type storedItem struct {
	item     Item
	position int64
}

type memoryCatalog struct {
	mu        sync.Mutex
	items     map[string]storedItem
	listErr   error
	upsertErr error
	upserts   int
}

func newMemoryCatalog(items ...Item) *memoryCatalog {
	c := &memoryCatalog{items: map[string]storedItem{}}
	for i, item := range items {
		c.items[domain.ItemID(item.Name)] = storedItem{item: item, position: int64(i)}
	}
	return c
}

func (c *memoryCatalog) List(context.Context) ([]Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	stored := make([]storedItem, 0, len(c.items))
	for _, s := range c.items {
		stored = append(stored, s)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].position < stored[j].position })
	items := make([]Item, 0, len(stored))
	for _, s := range stored {
		items = append(items, s.item)
	}
	return items, nil
}

func (c *memoryCatalog) Find(_ context.Context, name string) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[domain.ItemID(name)]
	if !ok {
		return Item{}, &repoError{msg: "missing", notFound: true}
	}
	return s.item, nil
}

func (c *memoryCatalog) Upsert(_ context.Context, update Item, position int64) (Item, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upserts++
	if c.upsertErr != nil {
		return Item{}, false, c.upsertErr
	}
	id := domain.ItemID(update.Name)
	s, ok := c.items[id]
	if !ok {
		s = storedItem{item: Item{Name: update.Name}, position: position}
	}
	s.item = s.item.Apply(update)
	c.items[id] = s
	return s.item, !ok, nil
}

func (c *memoryCatalog) UpdateRequests(_ context.Context, name string, requests []string) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := domain.ItemID(name)
	s, ok := c.items[id]
	if !ok {
		return Item{}, &repoError{msg: "item missing", notFound: true}
	}
	s.item = s.item.Apply(Item{Requests: requests})
	c.items[id] = s
	return s.item, nil
}

type memoryMedia struct {
	mu        sync.Mutex
	assets    []MediaAsset
	recordErr error
	listErr   error
}

func (m *memoryMedia) Record(_ context.Context, asset MediaAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	for i, existing := range m.assets {
		if existing.Key == asset.Key {
			m.assets[i] = asset
			return nil
		}
	}
	m.assets = append(m.assets, asset)
	return nil
}

func (m *memoryMedia) Find(_ context.Context, key MediaKey) (MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, asset := range m.assets {
		if asset.Key == key {
			return asset, nil
		}
	}
	return MediaAsset{}, &repoError{msg: "media missing", notFound: true}
}

func (m *memoryMedia) List(context.Context) ([]MediaAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]MediaAsset(nil), m.assets...), nil
}

type stubClassifier struct {
	items []Item
	err   error
	calls int
}

func (s *stubClassifier) Classify(context.Context, string) ([]Item, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func readyAsset(key MediaKey, subject string) MediaAsset {
	return MediaAsset{Key: key, Location: key.ObjectPath(), Status: domain.AssetStatusReady, Subject: subject}
}

// fakeImages caches like the real adapter: a key is generated at most once.
type fakeImages struct {
	mu      sync.Mutex
	calls   map[string]int
	stored  map[string]bool
	failFor map[string]bool
}

func newFakeImages() *fakeImages {
	return &fakeImages{calls: map[string]int{}, stored: map[string]bool{}, failFor: map[string]bool{}}
}

func (f *fakeImages) Generate(_ context.Context, subject string, key MediaKey) (MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored[key.Name] {
		return readyAsset(key, subject), nil
	}
	f.calls[key.Name]++
	if f.failFor[key.Name] {
		return MediaAsset{}, &generators.GenerationError{Kind: key.Kind, Key: key.Name, Op: "generate", Err: errors.New("backend exploded")}
	}
	f.stored[key.Name] = true
	return readyAsset(key, subject), nil
}

type fakeVideos struct {
	mu      sync.Mutex
	calls   map[string]int
	stored  map[string]bool
	err     error
	subject []string
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{calls: map[string]int{}, stored: map[string]bool{}}
}

func (f *fakeVideos) Generate(_ context.Context, itemName, action string) (MediaAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.VideoKey(itemName, action)
	if f.stored[key.Name] {
		return readyAsset(key, itemName), nil
	}
	f.calls[key.Name]++
	f.subject = append(f.subject, itemName+"|"+action)
	if f.err != nil {
		return MediaAsset{}, &generators.GenerationError{Kind: key.Kind, Key: key.Name, Op: "poll", Err: f.err}
	}
	f.stored[key.Name] = true
	return readyAsset(key, itemName), nil
}

type fakeSpeech struct {
	calls int
	err   error
}

func (f *fakeSpeech) Generate(_ context.Context, text, voice string) (MediaAsset, error) {
	f.calls++
	if f.err != nil {
		return MediaAsset{}, f.err
	}
	if voice == "" {
		voice = "longxiaochun"
	}
	return readyAsset(domain.AudioKey(text, voice), text), nil
}

type recordingPublisher struct {
	events []CatalogEvent
	err    error
}

func (p *recordingPublisher) PublishCatalogEvent(_ context.Context, event CatalogEvent) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-1", nil
}

type fakeStore struct {
	objects   map[string][]byte
	existsErr error
	signed    []time.Duration
	now       time.Time
}

func (s *fakeStore) Exists(_ context.Context, object string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.objects[object]
	return ok, nil
}

func (s *fakeStore) Open(_ context.Context, object string) (io.ReadCloser, pstorage.ObjectInfo, error) {
	data, ok := s.objects[object]
	if !ok {
		return nil, pstorage.ObjectInfo{}, pstorage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), pstorage.ObjectInfo{Name: object, Size: int64(len(data))}, nil
}

func (s *fakeStore) SignedURL(_ context.Context, object string, ttl time.Duration) (string, time.Time, error) {
	s.signed = append(s.signed, ttl)
	return "https://signed.example/" + object, s.now.Add(ttl), nil
}

type fakeCompleter struct {
	content string
	err     error
	system  string
	user    string
	calls   int
}

func (f *fakeCompleter) CompleteText(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.content, f.err
}

type fakeVision struct {
	answer      string
	err         error
	contentType string
	calls       int
}

func (f *fakeVision) DescribeImage(_ context.Context, _ string, contentType string, _ []byte) (string, error) {
	f.calls++
	f.contentType = contentType
	return f.answer, f.err
}

func fixedClock() func() time.Time {
	ts := time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}
