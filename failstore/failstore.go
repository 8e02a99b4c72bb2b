// Package failstore implements the failure tracker: a single JSON
// document mapping video_id -> VideoMetaEntry, persisted to disk for
// crash-recovery of failure state. It is intentionally decoupled from
// the job package's types so it can be constructed and tested
// independently of the in-memory job registry.
package failstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// VideoMeta mirrors the metadata fields carried on a Job's progress
// once acquisition has extracted them.
type VideoMeta struct {
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
	Title         string `json:"title,omitempty"`
	Creator       string `json:"creator,omitempty"`
	LengthSeconds int    `json:"length_seconds,omitempty"`
	UploadDate    string `json:"upload_date,omitempty"`
}

// VideoMetaEntry is one record of the persisted document.
type VideoMetaEntry struct {
	VideoMeta
	JobFailed bool   `json:"job_failed"`
	LastError string `json:"last_error"`
}

type document struct {
	Data map[string]VideoMetaEntry `json:"data"`
}

// Store is the Failure Tracker. A single RWMutex serializes writers;
// readers take the shared lock. The file is rewritten, atomically,
// after every mutating call.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]VideoMetaEntry
}

// New loads (or initializes) the failure-tracker document at path.
func New(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]VideoMetaEntry),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create failure-tracker directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read failure-tracker document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode failure-tracker document: %w", err)
	}
	if doc.Data != nil {
		s.entries = doc.Data
	}

	return s, nil
}

// Exists reports whether videoID has a persisted entry.
func (s *Store) Exists(videoID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[videoID]
	return ok
}

// Read returns the entry for videoID, if any.
func (s *Store) Read(videoID string) (VideoMetaEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[videoID]
	return entry, ok
}

// ReadAll returns a shallow copy of every entry.
func (s *Store) ReadAll() map[string]VideoMetaEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]VideoMetaEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Create writes a fresh entry for videoID the first time acquisition
// produces metadata for it. It is a no-op if an entry already exists.
func (s *Store) Create(videoID string, meta VideoMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[videoID]; ok {
		return nil
	}

	s.entries[videoID] = VideoMetaEntry{VideoMeta: meta}
	return s.persistLocked()
}

// SetFailed records (or clears) the failed flag and last-error text
// for videoID. Clearing happens on retry and on successful finalize;
// clearing an id with no entry is a no-op, so submitting a never-seen
// video does not plant an empty metadata record.
func (s *Store) SetFailed(videoID string, failed bool, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[videoID]
	if !ok && !failed {
		return nil
	}
	entry.JobFailed = failed
	if failed {
		entry.LastError = msg
	} else {
		entry.LastError = ""
	}
	s.entries[videoID] = entry

	return s.persistLocked()
}

// persistLocked rewrites the document via create-temp + rename within
// the same directory, so no partial document is ever observable.
func (s *Store) persistLocked() error {
	doc := document{Data: s.entries}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failure-tracker document: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write failure-tracker temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename failure-tracker temp file: %w", err)
	}

	return nil
}
