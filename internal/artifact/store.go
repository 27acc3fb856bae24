package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"FXForecaster/internal/forest"
	"FXForecaster/internal/transform"
)

var (
	// ErrNoArtifact means nothing has been published under the store's name yet.
	ErrNoArtifact = errors.New("no published artifact")
	// ErrPairMismatch means the model and scaler on disk were not produced by
	// the same training run.
	ErrPairMismatch = errors.New("model/scaler pair mismatch")
	// ErrCorrupt means an artifact file failed to decode or verify.
	ErrCorrupt = errors.New("corrupt artifact")
)

const (
	currentFile  = "CURRENT"
	versionsDir  = "versions"
	stagingPref  = ".staging-"
	modelFile    = "model.json"
	scalerFile   = "scaler.json"
	manifestFile = "manifest.json"
)

type modelDoc struct {
	Version string         `json:"version"`
	Forest  *forest.Forest `json:"forest"`
}

type scalerDoc struct {
	Version  string    `json:"version"`
	Columns  []string  `json:"columns"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	NSamples int       `json:"n_samples"`
}

// Manifest describes one published version. It is written last, so a version
// directory without a manifest was never completed.
type Manifest struct {
	Version      string    `json:"version"`
	Name         string    `json:"name"`
	FittedAt     time.Time `json:"fitted_at"`
	Rows         int       `json:"rows"`
	DataFrom     time.Time `json:"data_from"`
	DataTo       time.Time `json:"data_to"`
	ModelSHA256  string    `json:"model_sha256"`
	ScalerSHA256 string    `json:"scaler_sha256"`
}

// Store keeps versioned artifact pairs under <root>/<name>:
//
//	CURRENT                     version id of the serving pair
//	versions/<version>/model.json
//	versions/<version>/scaler.json
//	versions/<version>/manifest.json
//
// Every write goes to a temporary path first and is renamed into place, so a
// reader resolving CURRENT only ever sees a complete pair.
type Store struct {
	root string
	name string
	keep int

	// afterWrite runs after each file of a staged version is written.
	afterWrite func(file string) error
}

// NewStore creates a store rooted at dir for the logical artifact name.
// keep bounds how many versions are retained; values < 1 keep everything.
func NewStore(dir, name string, keep int) *Store {
	return &Store{root: dir, name: name, keep: keep}
}

func (s *Store) Name() string { return s.name }

func (s *Store) base() string { return filepath.Join(s.root, s.name) }

// VersionDir returns the directory holding a published version.
func (s *Store) VersionDir(version string) string {
	return filepath.Join(s.base(), versionsDir, version)
}

// Current returns the version id CURRENT points at.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.base(), currentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoArtifact
		}
		return "", fmt.Errorf("read current pointer: %w", err)
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("%w: empty current pointer", ErrCorrupt)
	}
	return v, nil
}

// LoadCurrent loads the pair CURRENT points at.
func (s *Store) LoadCurrent() (*Artifact, error) {
	v, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.Load(v)
}

// Load reads and verifies one version. The model, scaler and manifest must
// all carry the same version id and the files must match the manifest digests.
func (s *Store) Load(version string) (*Artifact, error) {
	dir := s.VersionDir(version)

	var m Manifest
	if _, err := readJSON(filepath.Join(dir, manifestFile), &m); err != nil {
		return nil, err
	}
	var md modelDoc
	modelSum, err := readJSON(filepath.Join(dir, modelFile), &md)
	if err != nil {
		return nil, err
	}
	var sd scalerDoc
	scalerSum, err := readJSON(filepath.Join(dir, scalerFile), &sd)
	if err != nil {
		return nil, err
	}

	if m.Version != version || md.Version != version || sd.Version != version {
		return nil, fmt.Errorf("%w: dir %s, manifest %s, model %s, scaler %s",
			ErrPairMismatch, version, m.Version, md.Version, sd.Version)
	}
	if m.ModelSHA256 != modelSum || m.ScalerSHA256 != scalerSum {
		return nil, fmt.Errorf("%w: checksum mismatch in %s", ErrCorrupt, version)
	}
	if md.Forest == nil {
		return nil, fmt.Errorf("%w: %s has no model", ErrCorrupt, version)
	}
	if err := md.Forest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	params, err := transform.NewScalingParameters(sd.Columns, sd.Mean, sd.Scale, sd.NSamples)
	if err != nil {
		return nil, fmt.Errorf("%w: scaler: %v", ErrCorrupt, err)
	}

	return &Artifact{
		Name:     m.Name,
		Version:  m.Version,
		FittedAt: m.FittedAt,
		Model:    md.Forest,
		Scaler:   params,
		Rows:     m.Rows,
		DataFrom: m.DataFrom,
		DataTo:   m.DataTo,
	}, nil
}

// Publish writes a as a new version and then repoints CURRENT at it. If any
// step before the final rename fails, CURRENT still names the previous pair.
func (s *Store) Publish(a *Artifact) error {
	if a == nil || a.Scaler == nil || a.Model == nil {
		return errors.New("publish: incomplete artifact")
	}
	f, ok := a.Model.(*forest.Forest)
	if !ok {
		return fmt.Errorf("publish: unsupported model type %T", a.Model)
	}
	if a.Version == "" {
		return errors.New("publish: artifact has no version")
	}

	vdir := filepath.Join(s.base(), versionsDir)
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		return fmt.Errorf("create versions dir: %w", err)
	}
	staging, err := os.MkdirTemp(vdir, stagingPref)
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	modelSum, err := s.writeStaged(staging, modelFile, modelDoc{Version: a.Version, Forest: f})
	if err != nil {
		return err
	}
	scalerSum, err := s.writeStaged(staging, scalerFile, scalerDoc{
		Version:  a.Version,
		Columns:  a.Scaler.Columns(),
		Mean:     a.Scaler.Mean(),
		Scale:    a.Scaler.Scale(),
		NSamples: a.Scaler.NSamples(),
	})
	if err != nil {
		return err
	}
	if _, err := s.writeStaged(staging, manifestFile, Manifest{
		Version:      a.Version,
		Name:         a.Name,
		FittedAt:     a.FittedAt,
		Rows:         a.Rows,
		DataFrom:     a.DataFrom,
		DataTo:       a.DataTo,
		ModelSHA256:  modelSum,
		ScalerSHA256: scalerSum,
	}); err != nil {
		return err
	}

	if err := os.Rename(staging, s.VersionDir(a.Version)); err != nil {
		return fmt.Errorf("commit version %s: %w", a.Version, err)
	}
	committed = true

	if err := writeFileAtomic(filepath.Join(s.base(), currentFile), []byte(a.Version+"\n")); err != nil {
		return fmt.Errorf("swap current pointer: %w", err)
	}
	return nil
}

// Prune removes versions beyond the retention limit, oldest first, and any
// staging directories left behind by an interrupted publish. The current
// version is always kept.
func (s *Store) Prune() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.base(), versionsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	current, _ := s.Current()

	var versions, removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), stagingPref) {
			if err := os.RemoveAll(filepath.Join(s.base(), versionsDir, e.Name())); err != nil {
				return removed, err
			}
			continue
		}
		versions = append(versions, e.Name())
	}
	if s.keep < 1 || len(versions) <= s.keep {
		return removed, nil
	}

	sort.Strings(versions)
	excess := len(versions) - s.keep
	for _, v := range versions {
		if excess == 0 {
			break
		}
		if v == current {
			continue
		}
		if err := os.RemoveAll(s.VersionDir(v)); err != nil {
			return removed, err
		}
		removed = append(removed, v)
		excess--
	}
	return removed, nil
}

func (s *Store) writeStaged(dir, name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if s.afterWrite != nil {
		if err := s.afterWrite(name); err != nil {
			return "", err
		}
	}
	return digest(data), nil
}

func readJSON(path string, v any) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: missing %s", ErrCorrupt, filepath.Base(path))
		}
		return "", err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return "", fmt.Errorf("%w: decode %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	return digest(data), nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeFileAtomic replaces path with data via a temp file in the same
// directory and a rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
