package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"worktally/internal/core/model"
)

const (
	subjectsDir   = "subjects"
	subjectSuffix = ".yaml"
)

// ErrInvalidSubject indicates a subject name that maps to no file name.
var ErrInvalidSubject = errors.New("invalid subject name")

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

type yamlSubject struct {
	Name                string    `yaml:"name"`
	AccumulatedSeconds  int64     `yaml:"accumulated_seconds"`
	IdleThresholdMs     int64     `yaml:"idle_threshold_ms"`
	AutoStartOnActivity *bool     `yaml:"auto_start_on_activity,omitempty"`
	UpdatedAt           time.Time `yaml:"updated_at,omitempty"`
}

// Entry is a stored subject with its record.
type Entry struct {
	Name      string
	State     model.SubjectState
	UpdatedAt time.Time
}

// SubjectStore keeps one YAML file per tracked subject.
type SubjectStore struct {
	fs       afero.Fs
	root     string
	defaults model.SubjectState
	now      func() time.Time
}

// NewSubjectStore creates a store rooted at dataDir. Missing subjects load
// as defaults.
func NewSubjectStore(fs afero.Fs, dataDir string, defaults model.SubjectState) *SubjectStore {
	return &SubjectStore{
		fs:       fs,
		root:     filepath.Join(dataDir, subjectsDir),
		defaults: defaults.Normalized(),
		now:      time.Now,
	}
}

// LoadState reads the record of subject.
func (store *SubjectStore) LoadState(subject string) (model.SubjectState, error) {
	state := store.defaults
	path, err := store.pathFor(subject)
	if err != nil {
		return state, err
	}

	fileData, err := store.read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, err
	}

	applyYamlSubject(&state, fileData)
	return state, nil
}

// CanonicalName returns the display name stored for the slug of subject, or
// subject itself when nothing is stored yet.
func (store *SubjectStore) CanonicalName(subject string) (string, error) {
	path, err := store.pathFor(subject)
	if err != nil {
		return "", err
	}
	fileData, err := store.read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return subject, nil
		}
		return "", err
	}
	if fileData.Name == "" {
		return subject, nil
	}
	return fileData.Name, nil
}

// SaveState writes the record of subject through a temporary file. Names
// sharing a slug share the file and the first stored name is kept.
func (store *SubjectStore) SaveState(subject string, state model.SubjectState) error {
	path, err := store.pathFor(subject)
	if err != nil {
		return err
	}

	if err := store.fs.MkdirAll(store.root, 0o755); err != nil {
		return fmt.Errorf("create subjects directory: %w", err)
	}

	name := subject
	if stored, err := store.read(path); err == nil && stored.Name != "" {
		name = stored.Name
	}

	autoStart := state.AutoStartOnActivity
	fileData := yamlSubject{
		Name:                name,
		AccumulatedSeconds:  state.AccumulatedSeconds,
		IdleThresholdMs:     state.IdleThreshold.Milliseconds(),
		AutoStartOnActivity: &autoStart,
		UpdatedAt:           store.now().UTC().Truncate(time.Second),
	}

	serialized, err := yaml.Marshal(fileData)
	if err != nil {
		return fmt.Errorf("marshal subject yaml: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := afero.WriteFile(store.fs, tmpPath, serialized, 0o644); err != nil {
		return fmt.Errorf("write subject file: %w", err)
	}
	if err := store.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace subject file: %w", err)
	}
	return nil
}

// List returns every stored subject sorted by name.
func (store *SubjectStore) List() ([]Entry, error) {
	infos, err := afero.ReadDir(store.fs, store.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), subjectSuffix) {
			continue
		}
		fileData, err := store.read(filepath.Join(store.root, info.Name()))
		if err != nil {
			return nil, err
		}
		name := fileData.Name
		if name == "" {
			name = strings.TrimSuffix(info.Name(), subjectSuffix)
		}
		state := store.defaults
		applyYamlSubject(&state, fileData)
		entries = append(entries, Entry{Name: name, State: state, UpdatedAt: fileData.UpdatedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Slug maps a subject name to its file name stem.
func Slug(subject string) (string, error) {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(subject)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubject, subject)
	}
	return slug, nil
}

func (store *SubjectStore) pathFor(subject string) (string, error) {
	slug, err := Slug(subject)
	if err != nil {
		return "", err
	}
	return filepath.Join(store.root, slug+subjectSuffix), nil
}

func (store *SubjectStore) read(path string) (yamlSubject, error) {
	var fileData yamlSubject
	rawData, err := afero.ReadFile(store.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileData, err
		}
		return fileData, fmt.Errorf("read subject file: %w", err)
	}
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return fileData, fmt.Errorf("parse subject yaml %s: %w", filepath.Base(path), err)
	}
	return fileData, nil
}

func applyYamlSubject(state *model.SubjectState, fileData yamlSubject) {
	if fileData.AccumulatedSeconds > 0 {
		state.AccumulatedSeconds = fileData.AccumulatedSeconds
	}
	if fileData.IdleThresholdMs > 0 {
		state.IdleThreshold = time.Duration(fileData.IdleThresholdMs) * time.Millisecond
	}
	if fileData.AutoStartOnActivity != nil {
		state.AutoStartOnActivity = *fileData.AutoStartOnActivity
	}
}
