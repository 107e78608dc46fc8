// Package media persists generated artifacts to local disk and maps
// them to URLs served under the public media route.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// URLPrefix is the route prefix the artifacts are served under.
const URLPrefix = "/generated-media"

// Kind is the artifact family, used as the storage subdirectory.
type Kind string

const (
	KindImage Kind = "images"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) prefix() string {
	switch k {
	case KindImage:
		return "image"
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "file"
	}
}

// Store writes artifacts under a root directory, one subdirectory per
// kind.
type Store struct {
	root string
	seq  atomic.Uint64
	now  func() time.Time
}

// NewStore creates the root and per-kind directories if missing.
func NewStore(root string) (*Store, error) {
	for _, kind := range []Kind{KindImage, KindAudio, KindVideo} {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("create media directory: %w", err)
		}
	}
	return &Store{root: root, now: time.Now}, nil
}

// Save writes data and returns the URL it will be served at. Filenames
// carry a timestamp plus a process-local counter so concurrent saves in
// the same instant never collide.
func (s *Store) Save(kind Kind, data []byte, ext string) (string, error) {
	name := fmt.Sprintf("%s_%d_%d%s",
		kind.prefix(), s.now().UnixMilli(), s.seq.Add(1), ext)

	path := filepath.Join(s.root, string(kind), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", URLPrefix, kind, name), nil
}

// Root returns the storage root for static file serving.
func (s *Store) Root() string {
	return s.root
}

// ExtForMime maps common media MIME types to a file extension.
func ExtForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/wav", "audio/x-wav", "audio/L16;codec=pcm;rate=24000":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
