package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

// ErrFileTooLarge is returned before any bytes are copied or any
// record is written.
var ErrFileTooLarge = fmt.Errorf("file exceeds size limit")

// FileService stores uploads under a per-category directory layout and
// keeps their metadata in the store.
type FileService struct {
	store    storage.Store
	baseDir  string
	maxBytes int64
	log      *zap.Logger
}

func NewFileService(store storage.Store, baseDir string, maxBytes int64, log *zap.Logger) *FileService {
	return &FileService{store: store, baseDir: baseDir, maxBytes: maxBytes, log: log}
}

// ClassifyFile maps a filename to a storage category by extension.
func ClassifyFile(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return model.FileTypePDF
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return model.FileTypeImage
	case ".doc", ".docx", ".txt", ".ppt", ".pptx", ".xls", ".xlsx", ".odt":
		return model.FileTypeDocument
	case ".mp3", ".wav", ".ogg", ".m4a", ".flac":
		return model.FileTypeAudio
	case ".mp4", ".avi", ".mkv", ".mov", ".webm":
		return model.FileTypeVideo
	default:
		return model.FileTypeOther
	}
}

// Save checks the size ceiling, copies src into the category dir under
// a collision-free name and records the file. The ceiling check runs
// before the copy so an oversized upload leaves no trace.
func (s *FileService) Save(ctx context.Context, userID uint, filename string, size int64, src io.Reader, description string) (*model.File, error) {
	if size > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	fileType := ClassifyFile(filename)
	dir := filepath.Join(s.baseDir, fileType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create category dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	stored := fmt.Sprintf("%d_%s%s", userID, uuid.NewString(), ext)
	path := filepath.Join(dir, stored)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	rec, err := s.store.AddFile(ctx, storage.FileRecord{
		UserID:      userID,
		Filename:    filename,
		Path:        path,
		Type:        fileType,
		Size:        written,
		Description: description,
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	s.log.Info("file stored",
		zap.Uint("user_id", userID),
		zap.String("type", fileType),
		zap.Int64("size", written))
	return rec, nil
}

// List returns the user's active files, optionally filtered by type.
func (s *FileService) List(ctx context.Context, userID uint, fileType string, limit int) ([]model.File, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.ListFiles(ctx, userID, fileType, limit)
}

// Search matches the query against filename, description and tags.
// When nothing matches it falls back to the user's most recent files
// so the reply is never empty for a user who has uploads.
func (s *FileService) Search(ctx context.Context, userID uint, query string, limit int) ([]model.File, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query != "" {
		matched, err := s.store.SearchFiles(ctx, userID, query, limit)
		if err != nil {
			return nil, err
		}
		if len(matched) > 0 {
			return matched, nil
		}
	}
	return s.store.ListFiles(ctx, userID, "", limit)
}

// Stats summarizes a user's active files per category.
func (s *FileService) Stats(ctx context.Context, userID uint) (map[string]int, int64, error) {
	files, err := s.store.ListFiles(ctx, userID, "", 1000)
	if err != nil {
		return nil, 0, err
	}
	counts := make(map[string]int)
	var totalBytes int64
	for _, f := range files {
		counts[f.Type]++
		totalBytes += f.Size
	}
	return counts, totalBytes, nil
}

// Delete soft-deletes the record; the bytes stay on disk for the
// cleanup job.
func (s *FileService) Delete(ctx context.Context, userID, fileID uint) error {
	return s.store.SoftDeleteFile(ctx, userID, fileID)
}

// SweepTemp removes files in dir older than maxAge. Used for the
// download staging directory.
func (s *FileService) SweepTemp(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read temp dir: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
