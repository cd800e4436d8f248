package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/obby/fsclassify/internal/classifier"
	"github.com/obby/fsclassify/internal/database"
	"github.com/obby/fsclassify/internal/diff"
	"github.com/obby/fsclassify/internal/pipeline"
)

// MaxTrackedSize is the largest file whose content is versioned
const MaxTrackedSize = 1 << 20

// ErrNotRegularFile is returned when tracking a directory or special file
var ErrNotRegularFile = errors.New("not a regular file")

var hashPool = sync.Pool{
	New: func() interface{} {
		return sha256.New()
	},
}

// ContentTracker journals classified events and versions the content of
// created and modified files.
type ContentTracker struct {
	db         *database.DB
	diffGen    *diff.Generator
	workerPool *WorkerPool
	logger     hclog.Logger
}

// TrackResult represents the result of tracking a file change
type TrackResult struct {
	ContentHash  string
	FileSize     int64
	VersionID    int64
	Changed      bool
	LinesAdded   int
	LinesRemoved int
}

// NewContentTracker opens the journal at dbPath
func NewContentTracker(dbPath string, workers int, logger hclog.Logger) (*ContentTracker, error) {
	db, err := database.NewDB(dbPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &ContentTracker{
		db:         db,
		diffGen:    diff.NewDiffGenerator(),
		workerPool: NewWorkerPool(workers, logger),
		logger:     logger,
	}, nil
}

// DB returns the underlying journal
func (ct *ContentTracker) DB() *database.DB {
	return ct.db
}

// Handle journals a notification and schedules content tracking.
// Unknown events are journaled only for degraded windows.
func (ct *ContentTracker) Handle(ctx context.Context, n pipeline.Notification) error {
	ev := n.Event
	if ev.IsUnknown() && !n.Degraded() {
		return nil
	}

	rec := database.EventRecord{
		Kind:      string(ev.Kind),
		Path:      ev.Path,
		NewPath:   ev.NewPath,
		Rule:      n.Rule,
		Timestamp: n.Received.Unix(),
	}
	if n.Received.IsZero() {
		rec.Timestamp = 0
	}
	if n.Degraded() {
		rec.Errors = n.Err().Error()
	}
	if _, err := ct.db.InsertEvent(ctx, rec); err != nil {
		return err
	}

	switch ev.Kind {
	case classifier.KindCreate, classifier.KindModify:
		path := ev.Path
		task := TaskFunc(func(ctx context.Context) error {
			_, err := ct.TrackChange(ctx, path)
			if errors.Is(err, ErrNotRegularFile) || errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		})
		if !ct.workerPool.Submit(ctx, task) {
			return fmt.Errorf("track %s: worker pool stopped", path)
		}
	case classifier.KindRename, classifier.KindMove:
		return ct.db.RenamePath(ctx, ev.Path, ev.NewPath)
	}
	return nil
}

// CalculateHash calculates SHA-256 hash of content with line ending
// normalization
func CalculateHash(content []byte) string {
	h := hashPool.Get().(hash.Hash)
	defer func() {
		h.Reset()
		hashPool.Put(h)
	}()

	h.Write(normalizeLineEndings(content))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeLineEndings rewrites \r\n and lone \r as \n
func normalizeLineEndings(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return []byte(s)
}

// TrackChange stores a new version of the file when its content changed and
// records a diff against the previous version.
func (ct *ContentTracker) TrackChange(ctx context.Context, filePath string) (*TrackResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", filePath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("track %s: %w", filePath, ErrNotRegularFile)
	}
	if info.Size() > MaxTrackedSize {
		ct.logger.Debug("skipping large file", "path", filePath, "size", info.Size())
		return &TrackResult{FileSize: info.Size()}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", filePath, err)
	}
	content := string(normalizeLineEndings(data))
	contentHash := CalculateHash(data)

	prevHash, prevVersionID, err := ct.db.GetPreviousHash(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", filePath, err)
	}

	result := &TrackResult{
		ContentHash: contentHash,
		FileSize:    int64(len(data)),
		VersionID:   prevVersionID,
	}
	if prevHash == contentHash {
		return result, nil
	}

	versionID, err := ct.db.InsertFileVersion(ctx, filePath, contentHash, content, result.FileSize)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", filePath, err)
	}
	result.VersionID = versionID
	result.Changed = true

	if prevVersionID == 0 {
		return result, nil
	}

	oldContent, err := ct.db.GetFileVersionContent(ctx, prevVersionID)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", filePath, err)
	}
	diffText, added, removed := ct.diffGen.GenerateUnifiedDiff(oldContent, content)
	if err := ct.db.InsertDiff(ctx, filePath, prevVersionID, versionID, diffText, added, removed); err != nil {
		return nil, fmt.Errorf("track %s: %w", filePath, err)
	}
	result.LinesAdded = added
	result.LinesRemoved = removed

	ct.logger.Debug("tracked change", "path", filePath, "version", versionID, "added", added, "removed", removed)
	return result, nil
}

// Start starts the worker pool
func (ct *ContentTracker) Start() {
	ct.workerPool.Start()
}

// Close stops the workers and closes the journal
func (ct *ContentTracker) Close() error {
	ct.workerPool.Stop()
	return ct.db.Close()
}
