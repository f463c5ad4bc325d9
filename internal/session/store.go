package session

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/subauto/subauto/pkg/log"
)

const stateFilename = "translation_state.json"

// fingerprintSize bounds how much of the source file is hashed: enough to
// identify it, cheap enough to run on every resume check.
const fingerprintSize = 1024 * 1024

// Store persists a session's progress so an interrupted job can resume.
// Persistence failures are logged and swallowed: a lost state file degrades
// to "no resume available", it never aborts the job.
type Store struct {
	mu        sync.RWMutex
	statePath string
	current   *State
}

func NewStore(stateDir string) *Store {
	return &Store{
		statePath: filepath.Join(stateDir, stateFilename),
	}
}

// Fingerprint hashes the first 1MB of a file. Returns "" when the file
// cannot be read.
func Fingerprint(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, io.LimitReader(f, fingerprintSize)); err != nil {
		return ""
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Create starts a fresh session and persists it immediately.
func (s *Store) Create(sourceFile string, trackID, totalLines int, sourceLang, targetLang, modelName string) *State {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &State{
		SourceFile:            sourceFile,
		SourceFingerprint:     Fingerprint(sourceFile),
		TrackID:               trackID,
		SourceLang:            sourceLang,
		TargetLang:            targetLang,
		ModelName:             modelName,
		TotalLines:            totalLines,
		CompletedTranslations: []Translation{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.saveLocked()
	return s.current.clone()
}

// UpdateProgress merges newly translated lines into the session, skipping
// indices already present so replays are idempotent, then rewrites the state
// file.
func (s *Store) UpdateProgress(newTranslations []Translation, batchIndex, promptTokens, completionTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}

	existing := s.current.CompletedIndices()
	for _, t := range newTranslations {
		if _, ok := existing[t.Index]; ok {
			continue
		}
		s.current.CompletedTranslations = append(s.current.CompletedTranslations, t)
		existing[t.Index] = struct{}{}
	}

	s.current.CurrentBatchIndex = batchIndex
	s.current.UpdatedAt = time.Now()
	s.current.PromptTokensUsed += promptTokens
	s.current.CompletionTokensUsed += completionTokens

	s.saveLocked()
}

// saveLocked rewrites the state file wholesale. A temp file plus rename
// keeps a crash mid-write from leaving a half document behind.
func (s *Store) saveLocked() {
	if s.current == nil {
		return
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		log.Warn("Failed to encode session state: %v", err)
		return
	}

	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn("Failed to save session state: %v", err)
		return
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		log.Warn("Failed to save session state: %v", err)
	}
}

// Load reads the state file from disk, replacing the in-memory state.
// Returns nil when there is none or it cannot be decoded.
func (s *Store) Load() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() *State {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Failed to load session state: %v", err)
		}
		return nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Warn("Failed to decode session state: %v", err)
		return nil
	}
	s.current = &state
	return state.clone()
}

// HasResumableState reports whether saved progress exists and still matches
// reality. Any mismatch clears the stale state as a side effect.
func (s *Store) HasResumableState(sourceFile string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.loadLocked()
	if state == nil {
		return false
	}

	if len(state.CompletedTranslations) == 0 {
		s.clearLocked()
		return false
	}

	if sourceFile != "" {
		if state.SourceFile != sourceFile {
			s.clearLocked()
			return false
		}
		if current := Fingerprint(sourceFile); current != "" && current != state.SourceFingerprint {
			s.clearLocked()
			return false
		}
	}

	if _, err := os.Stat(state.SourceFile); err != nil {
		s.clearLocked()
		return false
	}

	return true
}

// Current returns a snapshot of the in-memory state for display. Callers
// must not treat it as live.
func (s *Store) Current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Clear deletes the persisted state. Called on completion or explicit
// discard.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.current = nil
	if err := os.Remove(s.statePath); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to clear session state: %v", err)
	}
}
