package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultMinScore is the minimum normalised match score a profile must
// reach before Best will select it.
const DefaultMinScore = 0.1

// Logger is the logging interface used by the Store, satisfied by
// logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store holds the loaded profile set.
//
// The set is replaced wholesale by Load; readers take the read lock, so
// Score/Best never observe a half-loaded set during a reload.
type Store struct {
	mu       sync.RWMutex
	profiles []*Profile
	minScore float64
	logger   Logger
}

// NewStore creates an empty profile store with the default threshold.
func NewStore() *Store {
	return &Store{
		minScore: DefaultMinScore,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load parses profile documents from the given paths (files or
// directories of *.json files) and replaces the previously loaded set.
//
// A malformed document is logged and skipped; one bad file never
// prevents the others from loading. Load only fails when a path cannot
// be read at all.
func (s *Store) Load(paths []string) error {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("reading profile path %q: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("reading profile directory %q: %w", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)

	var loaded []*Profile
	for _, file := range files {
		p, err := loadFile(file)
		if err != nil {
			s.logger.Warn("skipping malformed profile", "file", file, "error", err)
			continue
		}
		loaded = append(loaded, p)
	}

	s.mu.Lock()
	s.profiles = loaded
	s.mu.Unlock()

	s.logger.Info("profiles loaded", "count", len(loaded), "files", len(files))
	return nil
}

// loadFile parses and validates a single profile document.
func loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Add validates and appends a single profile to the loaded set. Used
// for generated profiles and programmatic setup; files go through Load.
func (s *Store) Add(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.profiles = append(s.profiles, p)
	s.mu.Unlock()
	return nil
}

// Profiles returns the current profile set in load order. The returned
// slice is a copy; the profiles themselves are read-only by convention.
func (s *Store) Profiles() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Count returns the number of loaded profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
