// Package library inventories the artifacts that downloads have written
// under the storage root.
package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"

	"github.com/subhub/youtube-subtitle-hub/internal/config"
)

type scannerOptions struct {
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

// Scanner walks the storage tree on demand and caches the result briefly
// so status pages can poll it without hammering the filesystem.
type Scanner struct {
	storage config.StorageConfig

	mu            sync.RWMutex
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(storage config.StorageConfig, opts ...Option) *Scanner {
	options := scannerOptions{
		cacheTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{
		storage:  storage,
		cacheTTL: options.cacheTTL,
	}
}

// Invalidate drops the cache so the next Scan rereads the tree.
func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	ret := &Library{
		Videos:    make([]Artifact, 0),
		Subtitles: make([]Artifact, 0),
		Prompts:   make([]Artifact, 0),
	}

	sections := []struct {
		root    string
		section Section
	}{
		{s.storage.VideoPath(), SectionVideo},
		{s.storage.SubtitlePath(), SectionSubtitle},
		{s.storage.PromptPath(), SectionPrompt},
	}

	for _, sec := range sections {
		artifacts, err := s.scanSection(ctx, sec.root, sec.section)
		if err != nil {
			return nil, err
		}
		for _, artifact := range artifacts {
			ret.TotalSize += artifact.SizeBytes
		}
		switch sec.section {
		case SectionVideo:
			ret.Videos = artifacts
		case SectionSubtitle:
			ret.Subtitles = artifacts
		case SectionPrompt:
			ret.Prompts = artifacts
		}
	}

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: cloneLibrary(ret),
		}
	}
	s.mu.Unlock()

	return ret, nil
}

func (s *Scanner) scanSection(ctx context.Context, root string, section Section) ([]Artifact, error) {
	ret := make([]Artifact, 0)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return ret, nil
		}
		return nil, err
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		artifact := Artifact{
			Name:          d.Name(),
			Section:       section,
			URL:           s.storage.PublicPath(path),
			SizeBytes:     info.Size(),
			SizeHuman:     humanize.IBytes(uint64(info.Size())),
			ModifiedAtUTC: info.ModTime().UTC().Format(time.RFC3339),
		}
		if section == SectionSubtitle {
			artifact.Format = strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name())), ".")
			artifact.Language = languageFromName(d.Name())
		}
		ret = append(ret, artifact)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(ret, func(i, j int) bool {
		return ret[i].ModifiedAtUTC > ret[j].ModifiedAtUTC
	})
	return ret, nil
}

// languageFromName extracts the language token yt-dlp embeds in subtitle
// filenames, e.g. "talk.en.srt" yields "en". Returns the normalized ISO
// 639-1 base code or "" when no token parses as a language.
func languageFromName(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndexByte(stem, '.')
	if idx < 0 {
		return ""
	}
	token := stem[idx+1:]
	// yt-dlp marks auto-translated tracks like "en-orig" or "zh-Hans";
	// Parse still yields a usable tag alongside a ValueError for the
	// unknown subtag, so only syntax errors disqualify a token.
	tag, err := language.Parse(token)
	if err != nil {
		var verr language.ValueError
		if !errors.As(err, &verr) {
			return ""
		}
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

func cloneLibrary(src *Library) *Library {
	if src == nil {
		return nil
	}
	dst := &Library{
		Videos:    append([]Artifact(nil), src.Videos...),
		Subtitles: append([]Artifact(nil), src.Subtitles...),
		Prompts:   append([]Artifact(nil), src.Prompts...),
		TotalSize: src.TotalSize,
	}
	return dst
}
