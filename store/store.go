// Package store persists C3/C5/C6's learned, in-memory state to disk so a
// restarted process resumes from where it left off instead of re-learning
// from a cold start (spec §8's round-trip law: export then import
// reproduces the same state). Grounded on config.ReadFileConfig's
// afero-based file IO: the same filesystem abstraction that lets config
// loading run against an in-memory afero.Fs in tests backs the save/load
// calls here.
package store

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/lateralwatch/engine/baseline"
	"github.com/lateralwatch/engine/clock"
	"github.com/lateralwatch/engine/graph"
	"github.com/lateralwatch/engine/logger"
	"github.com/lateralwatch/engine/threatintel"
)

const (
	graphFile       = "graph.json"
	baselineFile    = "baseline.json"
	threatIntelFile = "threatintel.json"
)

// Store saves and restores the three learned-state components against a
// directory on afs, named by spec §8 ("the persisted state").
type Store struct {
	afs afero.Fs
	dir string
}

// New returns a Store rooted at dir on afs. dir is created on first Save
// if it doesn't already exist.
func New(afs afero.Fs, dir string) *Store {
	return &Store{afs: afs, dir: dir}
}

// SaveGraph persists g's current state, overwriting any prior snapshot.
func (s *Store) SaveGraph(g *graph.Graph, clk clock.Clock) error {
	data, err := g.Export(clk.Now())
	if err != nil {
		return err
	}
	return s.writeFile(graphFile, data)
}

// LoadGraph restores g from its persisted snapshot. A missing file is not
// an error: g is left as the caller constructed it (cold start).
func (s *Store) LoadGraph(g *graph.Graph) error {
	data, ok, err := s.readFile(graphFile)
	if err != nil || !ok {
		return err
	}
	return g.Import(data)
}

// SaveBaseline persists l's current accumulators, overwriting any prior
// snapshot.
func (s *Store) SaveBaseline(l *baseline.Learner) error {
	data, err := l.Export()
	if err != nil {
		return err
	}
	return s.writeFile(baselineFile, data)
}

// LoadBaseline restores l from its persisted snapshot. A missing file is
// not an error.
func (s *Store) LoadBaseline(l *baseline.Learner) error {
	data, ok, err := s.readFile(baselineFile)
	if err != nil || !ok {
		return err
	}
	return l.Import(data)
}

// SaveThreatIntel persists m's locally-added IOC blacklists, overwriting
// any prior snapshot. Built-in signature tables are never written: they
// are reconstructed by threatintel.NewMatcher on every process start.
func (s *Store) SaveThreatIntel(m *threatintel.Matcher) error {
	data, err := m.Export()
	if err != nil {
		return err
	}
	return s.writeFile(threatIntelFile, data)
}

// LoadThreatIntel restores m's IOC blacklists from their persisted
// snapshot. A missing file is not an error.
func (s *Store) LoadThreatIntel(m *threatintel.Matcher) error {
	data, ok, err := s.readFile(threatIntelFile)
	if err != nil || !ok {
		return err
	}
	return m.Import(data)
}

// SaveAll persists all three components in sequence, logging and
// returning the first error encountered rather than partially failing
// silently.
func (s *Store) SaveAll(g *graph.Graph, l *baseline.Learner, m *threatintel.Matcher, clk clock.Clock) error {
	log := logger.WithComponent("store")

	if err := s.SaveGraph(g, clk); err != nil {
		log.Error().Err(err).Msg("failed to save graph state")
		return err
	}
	if err := s.SaveBaseline(l); err != nil {
		log.Error().Err(err).Msg("failed to save baseline state")
		return err
	}
	if err := s.SaveThreatIntel(m); err != nil {
		log.Error().Err(err).Msg("failed to save threat-intel state")
		return err
	}
	return nil
}

// LoadAll restores all three components from disk, tolerating a cold
// start (no prior state on any of them) without error.
func (s *Store) LoadAll(g *graph.Graph, l *baseline.Learner, m *threatintel.Matcher) error {
	log := logger.WithComponent("store")

	if err := s.LoadGraph(g); err != nil {
		log.Error().Err(err).Msg("failed to load graph state")
		return err
	}
	if err := s.LoadBaseline(l); err != nil {
		log.Error().Err(err).Msg("failed to load baseline state")
		return err
	}
	if err := s.LoadThreatIntel(m); err != nil {
		log.Error().Err(err).Msg("failed to load threat-intel state")
		return err
	}
	return nil
}

func (s *Store) writeFile(name string, data []byte) error {
	if err := s.afs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.afs, filepath.Join(s.dir, name), data, 0o644)
}

// readFile returns (data, true, nil) when name exists, (nil, false, nil)
// when it doesn't, and (nil, false, err) on any other read error.
func (s *Store) readFile(name string) ([]byte, bool, error) {
	path := filepath.Join(s.dir, name)
	exists, err := afero.Exists(s.afs, path)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	data, err := afero.ReadFile(s.afs, path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
