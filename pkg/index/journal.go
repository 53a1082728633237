// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package index

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/graph"
)

// Journal file names inside the data directory.
const (
	MapFileName    = "qdrant_map.json"
	StatusFileName = "index_status.json"
)

// Index run outcomes recorded in index_status.json.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Status is the durable record of the last index run for a collection.
type Status struct {
	Collection  string `json:"collection"`
	Model       string `json:"model"`
	VectorSize  int    `json:"vector_size"`
	Distance    string `json:"distance"`
	PointsCount int    `json:"points_count"`
	IndexedAt   string `json:"indexed_at"`
	Status      string `json:"status"`
}

// pathLocks serializes journal writers per file path across all Journal
// instances in the process.
var (
	pathLocksMu sync.Mutex
	pathLocks   = make(map[string]*sync.Mutex)
)

func lockPath(path string) *sync.Mutex {
	pathLocksMu.Lock()
	defer pathLocksMu.Unlock()
	mu, ok := pathLocks[path]
	if !ok {
		mu = &sync.Mutex{}
		pathLocks[path] = mu
	}
	return mu
}

// Journal owns the index sidecar artifacts: the point-to-node map and the
// status document. All writes are atomic (temp + rename), so readers never
// observe a partial file and cancelled runs leave no final-name artifacts.
type Journal struct {
	dir    string
	logger *slog.Logger
}

// NewJournal creates a journal rooted at dir.
func NewJournal(dir string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{dir: dir, logger: logger}
}

// MapPath returns the point-to-node map location.
func (j *Journal) MapPath() string { return filepath.Join(j.dir, MapFileName) }

// StatusPath returns the status document location.
func (j *Journal) StatusPath() string { return filepath.Join(j.dir, StatusFileName) }

// WriteMap persists the point-to-node mapping with stringified point ids.
func (j *Journal) WriteMap(pointToNode map[uint64]string) error {
	out := make(map[string]string, len(pointToNode))
	for id, nodeID := range pointToNode {
		out[strconv.FormatUint(id, 10)] = nodeID
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "encode point map", err)
	}
	path := j.MapPath()
	mu := lockPath(path)
	mu.Lock()
	defer mu.Unlock()
	if err := graph.WriteFileAtomic(path, data); err != nil {
		return err
	}
	j.logger.Info("index.journal.map_written", "path", path, "points", len(out))
	return nil
}

// ReadMap loads the point-to-node mapping.
func (j *Journal) ReadMap() (map[uint64]string, error) {
	data, err := os.ReadFile(j.MapPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rgerr.Newf(rgerr.KindNotFound, "point map not found: %s", j.MapPath())
		}
		return nil, rgerr.Wrap(rgerr.KindInternal, "read point map", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, rgerr.Wrap(rgerr.KindInternal, "decode point map", err)
	}
	out := make(map[uint64]string, len(raw))
	for key, nodeID := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, rgerr.Newf(rgerr.KindInternal, "invalid point id %q in map", key)
		}
		out[id] = nodeID
	}
	return out, nil
}

// WriteStatus persists the status document.
func (j *Journal) WriteStatus(s Status) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return rgerr.Wrap(rgerr.KindInternal, "encode index status", err)
	}
	path := j.StatusPath()
	mu := lockPath(path)
	mu.Lock()
	defer mu.Unlock()
	if err := graph.WriteFileAtomic(path, data); err != nil {
		return err
	}
	j.logger.Info("index.journal.status_written", "path", path, "status", s.Status, "points", s.PointsCount)
	return nil
}

// ReadStatus loads the status document.
func (j *Journal) ReadStatus() (*Status, error) {
	data, err := os.ReadFile(j.StatusPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rgerr.Newf(rgerr.KindNotFound, "index status not found: %s", j.StatusPath())
		}
		return nil, rgerr.Wrap(rgerr.KindInternal, "read index status", err)
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, rgerr.Wrap(rgerr.KindInternal, "decode index status", err)
	}
	return &s, nil
}
