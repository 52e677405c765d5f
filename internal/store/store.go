// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store archives finished fit runs on disk. Each run owns a
// directory under the base path holding a plain metadata.json next to a
// zstd-compressed history payload, checksummed so a later load notices
// on-disk corruption.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/curioloop/dqed/dqed"
)

const (
	metaFile    = "metadata.json"
	historyFile = "history.json.zst"
)

// The zstd coders are stateless through EncodeAll/DecodeAll and designed
// for reuse, so both directions run through a warmed-up pool.
var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(false),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Run captures one finished solve for archival.
type Run struct {
	Model       string
	Start       []float64
	Solution    []float64
	Constraints []float64
	Residual    float64
	Status      dqed.Status
	Iterations  int
	Evaluations int
	Elapsed     time.Duration
	// History is the residual norm observed at every evaluation.
	History []float64
}

type RunMeta struct {
	ID          string    `json:"id"`
	Model       string    `json:"model"`
	Created     time.Time `json:"created"`
	Status      string    `json:"status"`
	StatusCode  int       `json:"status_code"`
	OK          bool      `json:"ok"`
	Residual    float64   `json:"residual"`
	Iterations  int       `json:"iterations"`
	Evaluations int       `json:"evaluations"`
	ElapsedSec  float64   `json:"elapsed_seconds"`
	Solution    []float64 `json:"solution"`
	Checksum    uint64    `json:"checksum"`
}

// RunData is the payload kept compressed behind the metadata.
type RunData struct {
	Start       []float64 `json:"start"`
	Solution    []float64 `json:"solution"`
	Constraints []float64 `json:"constraints,omitempty"`
	History     []float64 `json:"history"`
}

// Save archives the run under a fresh identifier and returns it.
func (s *Store) Save(run *Run) (string, error) {
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	payload, err := json.Marshal(RunData{
		Start:       run.Start,
		Solution:    run.Solution,
		Constraints: run.Constraints,
		History:     run.History,
	})
	if err != nil {
		return "", err
	}

	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	packed := encoder.EncodeAll(payload, nil)
	zstdEncoderPool.Put(encoder)

	if err := os.WriteFile(filepath.Join(runDir, historyFile), packed, 0644); err != nil {
		return "", err
	}

	meta := RunMeta{
		ID:          runID,
		Model:       run.Model,
		Created:     time.Now(),
		Status:      run.Status.String(),
		StatusCode:  int(run.Status),
		OK:          run.Status.OK(),
		Residual:    run.Residual,
		Iterations:  run.Iterations,
		Evaluations: run.Evaluations,
		ElapsedSec:  run.Elapsed.Seconds(),
		Solution:    run.Solution,
		Checksum:    xxhash.Sum64(packed),
	}

	metaOut, err := os.Create(filepath.Join(runDir, metaFile))
	if err != nil {
		return "", err
	}
	defer metaOut.Close()

	enc := json.NewEncoder(metaOut)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	return runID, nil
}

// Load reads the metadata of one archived run.
func (s *Store) Load(runID string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metaFile))
	if err != nil {
		return nil, err
	}

	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadRun reads back the full run, verifying the history payload against
// the checksum recorded in the metadata.
func (s *Store) LoadRun(runID string) (*RunMeta, *RunData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}

	packed, err := os.ReadFile(filepath.Join(s.baseDir, runID, historyFile))
	if err != nil {
		return nil, nil, err
	}
	if sum := xxhash.Sum64(packed); sum != meta.Checksum {
		return nil, nil, fmt.Errorf("run %s: history checksum mismatch", runID)
	}

	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	payload, err := decoder.DecodeAll(packed, nil)
	zstdDecoderPool.Put(decoder)
	if err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}

	var data RunData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, nil, err
	}

	return meta, &data, nil
}

// List returns the metadata of every readable run, oldest first.
// Entries that are not run directories are skipped.
func (s *Store) List() ([]RunMeta, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMeta{}, nil
		}
		return nil, err
	}

	runs := make([]RunMeta, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}

	slices.SortFunc(runs, func(a, b RunMeta) int { return a.Created.Compare(b.Created) })
	return runs, nil
}
