package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

const maxThumbnailSize = 10 * 1024 * 1024

// largestPhotoSize picks the size with the most pixels.
func largestPhotoSize(photo *tg.Photo) *tg.PhotoSize {
	var (
		largest   *tg.PhotoSize
		maxPixels int
	)
	for _, sizeClass := range photo.Sizes {
		switch size := sizeClass.(type) {
		case *tg.PhotoSize:
			if pixels := size.W * size.H; pixels > maxPixels {
				maxPixels = pixels
				largest = size
			}
		case *tg.PhotoSizeProgressive:
			if pixels := size.W * size.H; pixels > maxPixels {
				maxPixels = pixels
				largest = &tg.PhotoSize{Type: size.Type, W: size.W, H: size.H}
			}
		}
	}
	return largest
}

// thumbnailFromMessage downloads the post photo into mediaDir and returns
// its path. Posts without a photo return an empty path. Files that already
// exist are not downloaded again.
func thumbnailFromMessage(ctx context.Context, client *telegram.Client, msg *tg.Message, id string, mediaDir string) (string, error) {
	media, ok := msg.Media.(*tg.MessageMediaPhoto)
	if !ok {
		return "", nil
	}
	photoClass, ok := media.GetPhoto()
	if !ok {
		return "", nil
	}
	photo, ok := photoClass.(*tg.Photo)
	if !ok {
		return "", nil
	}

	size := largestPhotoSize(photo)
	if size == nil {
		return "", fmt.Errorf("no suitable photo size found")
	}

	localPath := filepath.Join(mediaDir, fmt.Sprintf("%s_%d.jpg", id, photo.ID))
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	if err := os.MkdirAll(mediaDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	location := &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     size.Type,
	}
	if _, err := downloader.NewDownloader().Download(client.API(), location).Stream(ctx, file); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("failed to download photo: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("failed to stat downloaded file: %w", err)
	}
	if info.Size() > maxThumbnailSize {
		os.Remove(localPath)
		return "", fmt.Errorf("photo size (%d bytes) exceeds maximum allowed size (%d bytes)", info.Size(), maxThumbnailSize)
	}

	slog.Debug("thumbnail downloaded",
		"path", localPath,
		"size", info.Size(),
		"dimensions", fmt.Sprintf("%dx%d", size.W, size.H))
	return localPath, nil
}
