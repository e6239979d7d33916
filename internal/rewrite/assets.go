package rewrite

import "sync"

// AssetStore remembers what happened to every asset URL during a run so each
// one is downloaded at most once.
type AssetStore struct {
	mu     sync.RWMutex
	paths  map[string]string
	failed map[string]error
}

// NewAssetStore creates an empty store.
func NewAssetStore() *AssetStore {
	return &AssetStore{
		paths:  make(map[string]string),
		failed: make(map[string]error),
	}
}

// Lookup returns the saved path of url, or the error of its failed download.
// known is false for URLs not seen yet.
func (s *AssetStore) Lookup(url string) (path string, failure error, known bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.paths[url]; ok {
		return p, nil, true
	}
	if err, ok := s.failed[url]; ok {
		return "", err, true
	}
	return "", nil, false
}

// RecordSaved stores the local path of a downloaded asset.
func (s *AssetStore) RecordSaved(url, path string) {
	s.mu.Lock()
	s.paths[url] = path
	delete(s.failed, url)
	s.mu.Unlock()
}

// RecordFailed stores a download failure.
func (s *AssetStore) RecordFailed(url string, err error) {
	s.mu.Lock()
	s.failed[url] = err
	s.mu.Unlock()
}

// Saved returns a copy of the URL to path map.
func (s *AssetStore) Saved() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.paths))
	for k, v := range s.paths {
		out[k] = v
	}
	return out
}

// Failed returns the URLs whose download failed.
func (s *AssetStore) Failed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.failed))
	for k := range s.failed {
		out = append(out, k)
	}
	return out
}

// Len returns the number of saved and failed assets.
func (s *AssetStore) Len() (saved, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paths), len(s.failed)
}
