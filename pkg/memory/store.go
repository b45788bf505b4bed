// Package memory implements the feature-tracking store behind the memory
// built-in tools. From the runtime's perspective these are ordinary tools;
// nothing outside the built-in toolset treats memory specially.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status values tracked per feature.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusBlocked:    true,
}

// Goal is a top-level objective grouping features.
type Goal struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	FeatureIDs  []string `json:"feature_ids,omitempty"`
}

// Feature is one tracked unit of work.
type Feature struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	GoalID      string    `json:"goal_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProgressEntry is one appended progress note.
type ProgressEntry struct {
	Timestamp time.Time `json:"timestamp"`
	FeatureID string    `json:"feature_id,omitempty"`
	Message   string    `json:"message"`
}

// TestResult is one recorded test outcome.
type TestResult struct {
	Timestamp time.Time `json:"timestamp"`
	FeatureID string    `json:"feature_id,omitempty"`
	TestName  string    `json:"test_name"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

type state struct {
	Goals       []Goal          `json:"goals"`
	Features    []Feature       `json:"features"`
	Progress    []ProgressEntry `json:"progress"`
	TestResults []TestResult    `json:"test_results"`
}

// Store persists feature-tracking state to a JSON file.
type Store struct {
	mu    sync.Mutex
	path  string
	state state
}

// NewStore opens (or initializes) the store at path. A missing file is not
// an error; it is created on first write.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read memory state: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("parse memory state %s: %w", path, err)
	}
	return s, nil
}

// Summary renders the overall state: goals, feature counts by status, and
// the most recent progress entries.
func (s *Store) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Goals: %d, Features: %d\n", len(s.state.Goals), len(s.state.Features))

	counts := map[string]int{}
	for _, f := range s.state.Features {
		counts[f.Status]++
	}
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Fprintf(&b, "  %s: %d\n", st, counts[st])
	}

	recent := s.state.Progress
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if len(recent) > 0 {
		b.WriteString("Recent progress:\n")
		for _, p := range recent {
			fmt.Fprintf(&b, "  [%s] %s\n", p.Timestamp.Format(time.RFC3339), p.Message)
		}
	}
	return b.String()
}

// FeatureDetails renders one feature with its progress and test history.
func (s *Store) FeatureDetails(featureID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	feature := s.findFeature(featureID)
	if feature == nil {
		return "", fmt.Errorf("feature %q not found", featureID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Feature %s: %s\nStatus: %s\n", feature.ID, feature.Title, feature.Status)
	if feature.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", feature.Description)
	}
	for _, p := range s.state.Progress {
		if p.FeatureID == featureID {
			fmt.Fprintf(&b, "Progress [%s]: %s\n", p.Timestamp.Format(time.RFC3339), p.Message)
		}
	}
	for _, t := range s.state.TestResults {
		if t.FeatureID == featureID {
			fmt.Fprintf(&b, "Test %s: %s\n", t.TestName, t.Status)
		}
	}
	return b.String(), nil
}

// GoalDetails renders one goal and its features; with an empty id, all goals.
func (s *Store) GoalDetails(goalID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	found := false
	for _, g := range s.state.Goals {
		if goalID != "" && g.ID != goalID {
			continue
		}
		found = true
		fmt.Fprintf(&b, "Goal %s: %s\n", g.ID, g.Title)
		for _, f := range s.state.Features {
			if f.GoalID == g.ID {
				fmt.Fprintf(&b, "  [%s] %s: %s\n", f.Status, f.ID, f.Title)
			}
		}
	}
	if goalID != "" && !found {
		return "", fmt.Errorf("goal %q not found", goalID)
	}
	if !found {
		return "No goals recorded.\n", nil
	}
	return b.String(), nil
}

// UpdateFeatureStatus sets a feature's status, creating the feature if it
// does not exist yet.
func (s *Store) UpdateFeatureStatus(featureID, status, note string) error {
	if !validStatuses[status] {
		return fmt.Errorf("invalid status %q (valid: pending, in_progress, completed, blocked)", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	feature := s.findFeature(featureID)
	if feature == nil {
		s.state.Features = append(s.state.Features, Feature{
			ID:        featureID,
			Title:     featureID,
			Status:    status,
			UpdatedAt: time.Now(),
		})
	} else {
		feature.Status = status
		feature.UpdatedAt = time.Now()
	}

	if note != "" {
		s.state.Progress = append(s.state.Progress, ProgressEntry{
			Timestamp: time.Now(),
			FeatureID: featureID,
			Message:   note,
		})
	}
	return s.save()
}

// LogProgress appends a progress note.
func (s *Store) LogProgress(message, featureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Progress = append(s.state.Progress, ProgressEntry{
		Timestamp: time.Now(),
		FeatureID: featureID,
		Message:   message,
	})
	return s.save()
}

// AddTestResult records a test outcome.
func (s *Store) AddTestResult(featureID, testName, status, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.TestResults = append(s.state.TestResults, TestResult{
		Timestamp: time.Now(),
		FeatureID: featureID,
		TestName:  testName,
		Status:    status,
		Details:   details,
	})
	return s.save()
}

func (s *Store) findFeature(id string) *Feature {
	for i := range s.state.Features {
		if s.state.Features[i].ID == id {
			return &s.state.Features[i]
		}
	}
	return nil
}

// save writes the state file. Caller holds the lock.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write memory state: %w", err)
	}
	return nil
}
