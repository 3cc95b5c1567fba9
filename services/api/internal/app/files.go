package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"gobarber/internal/util"
	"gobarber/pkg/domain"
)

// UploadFile stores an avatar image and records it. The object key is
// random so user supplied names never collide or traverse paths.
func (a *App) UploadFile(ctx context.Context, filename string, r io.Reader, size int64) (domain.File, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return domain.File{}, ErrValidationFails
	}
	ext := strings.ToLower(filepath.Ext(name))
	key := "avatars/" + util.NewID() + ext
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return domain.File{}, fmt.Errorf("save object: %w", err)
	}
	file := domain.File{Name: name, Path: key, CreatedAt: a.now().UTC()}
	if err := a.store.CreateFile(ctx, &file); err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.File{}, fmt.Errorf("save file: %w", err)
	}
	return *a.fileURL(ctx, &file), nil
}
