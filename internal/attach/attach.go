// Package attach stores the images uploaded for features and bugs.
// Files live under image_dir/<kind>/<item_uuid>/<filename>
package attach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fluxr/fluxr/internal/domain"
)

// Image describes a stored image file.
type Image struct {
	RelativePath string `json:"path" yaml:"path"`
	MimeType     string `json:"mime_type" yaml:"mime_type"`
	SizeBytes    int64  `json:"size_bytes" yaml:"size_bytes"`
	Checksum     string `json:"checksum" yaml:"checksum"`
}

// ItemDir returns the canonical directory for an item's images.
func ItemDir(imageDir string, kind domain.Kind, itemUUID string) string {
	return filepath.Join(imageDir, string(kind), itemUUID)
}

// RelativePath returns the path of an image relative to image_dir,
// e.g. bug/<item_uuid>/<filename>
func RelativePath(kind domain.Kind, itemUUID, filename string) string {
	return filepath.Join(string(kind), itemUUID, filename)
}

// AbsolutePath returns the absolute path for an image file.
func AbsolutePath(imageDir, relativePath string) string {
	return filepath.Join(imageDir, relativePath)
}

// Save validates src as an image within maxMB and copies it into the item's
// directory. Only features and bugs carry images.
func Save(imageDir string, kind domain.Kind, itemUUID, src string, maxMB int64) (*Image, error) {
	if kind != domain.KindFeature && kind != domain.KindBug {
		return nil, &domain.ValidationError{Field: "image", Message: fmt.Sprintf("%s items do not carry images", kind)}
	}

	filename := filepath.Base(src)
	mimeType := DetectMimeType(filename)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, &domain.ValidationError{Field: "image", Message: fmt.Sprintf("%s is not an image (%s)", filename, mimeType)}
	}

	size, err := GetFileSize(src)
	if err != nil {
		return nil, err
	}
	if err := ValidateSize(size, maxMB); err != nil {
		return nil, &domain.ValidationError{Field: "image", Message: err.Error()}
	}

	rel := RelativePath(kind, itemUUID, filename)
	size, checksum, err := CopyFile(src, AbsolutePath(imageDir, rel))
	if err != nil {
		return nil, err
	}
	return &Image{RelativePath: rel, MimeType: mimeType, SizeBytes: size, Checksum: checksum}, nil
}

// CopyFile copies a file from src to dst, returning size and checksum.
func CopyFile(src, dst string) (size int64, checksum string, err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("failed to open source: %w", err)
	}
	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, "", fmt.Errorf("failed to create destination directory: %w", err)
	}
	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create destination: %w", err)
	}
	defer dstFile.Close()

	hasher := sha256.New()
	size, err = io.Copy(io.MultiWriter(dstFile, hasher), srcFile)
	if err != nil {
		return 0, "", fmt.Errorf("failed to copy file: %w", err)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// DetectMimeType attempts to detect MIME type from filename extension.
// Falls back to application/octet-stream if unknown.
func DetectMimeType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return "application/octet-stream"
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}

	// Strip parameters like charset
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	return mimeType
}

// ValidateSize checks if file size is within limits.
func ValidateSize(size int64, maxMB int64) error {
	if maxMB <= 0 {
		return nil // No limit
	}

	maxBytes := maxMB * 1024 * 1024
	if size > maxBytes {
		return fmt.Errorf("image size %d bytes exceeds limit of %d MB", size, maxMB)
	}

	return nil
}

// DeleteFile removes an image and its item directory once empty.
func DeleteFile(imageDir, relativePath string) error {
	absPath := AbsolutePath(imageDir, relativePath)
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	// Leaves a non-empty directory in place.
	_ = os.Remove(filepath.Dir(absPath))
	return nil
}

// GetFileSize returns the size of a file in bytes.
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}
