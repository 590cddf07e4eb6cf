// Package media stores uploaded images and registers them as image assets.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Techyishu/writerly/cms"
	"github.com/Techyishu/writerly/models"
)

var (
	// ErrNotImage - uploaded file is not an image
	ErrNotImage = errors.New("file is not an image")
	// ErrTooLarge - uploaded file exceeds the size limit
	ErrTooLarge = errors.New("file is too large")
)

// Uploader - stores an image and returns its asset
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, body io.Reader) (*models.Asset, error)
}

// Storage - object storage for uploaded files
type Storage interface {
	// Put - stores the object and returns its public URL
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// readImage - reads at most maxBytes and checks that the content is an image
// declared is the content type sent by the client
func readImage(body io.Reader, declared string, maxBytes int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrTooLarge
	}

	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if !strings.HasPrefix(declared, "image/") {
		return nil, "", ErrNotImage
	}
	// the sniffed type decides, so SVG (text/xml) and other scriptable content is refused
	detected := http.DetectContentType(data)
	if !strings.HasPrefix(detected, "image/") {
		return nil, "", ErrNotImage
	}
	return data, detected, nil
}

var extensions = map[string]string{
	"image/png":    "png",
	"image/jpeg":   "jpg",
	"image/gif":    "gif",
	"image/webp":   "webp",
	"image/bmp":    "bmp",
	"image/x-icon": "ico",
}

// assetID - content addressed ID in the same shape as CMS image asset IDs
func assetID(data []byte, contentType string) string {
	sum := sha1.Sum(data)
	ext, ok := extensions[contentType]
	if !ok {
		ext = "bin"
	}
	return "image-" + hex.EncodeToString(sum[:]) + "-" + ext
}

// StorageUploader - keeps images in a Storage and registers an asset document in the CMS
type StorageUploader struct {
	storage  Storage
	client   cms.Client
	maxBytes int64
}

func NewStorageUploader(storage Storage, client cms.Client, maxBytes int64) *StorageUploader {
	return &StorageUploader{storage: storage, client: client, maxBytes: maxBytes}
}

func (u *StorageUploader) Upload(ctx context.Context, filename, contentType string, body io.Reader) (*models.Asset, error) {
	data, contentType, err := readImage(body, contentType, u.maxBytes)
	if err != nil {
		return nil, err
	}

	id := assetID(data, contentType)
	url, err := u.storage.Put(ctx, id, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	_, err = u.client.Create(ctx, cms.Document{
		"_id":              id,
		"_type":            cms.TypeImageAsset,
		"url":              url,
		"mimeType":         contentType,
		"size":             len(data),
		"originalFilename": filename,
	})
	// same content uploaded again
	if err != nil && !errors.Is(err, cms.ErrConflict) {
		return nil, fmt.Errorf("register image asset: %w", err)
	}
	return &models.Asset{AssetID: id, URL: url}, nil
}

// AssetUploader - sends images to a CMS that keeps assets itself
type AssetUploader struct {
	assets   cms.AssetUploader
	maxBytes int64
}

func NewAssetUploader(assets cms.AssetUploader, maxBytes int64) *AssetUploader {
	return &AssetUploader{assets: assets, maxBytes: maxBytes}
}

func (u *AssetUploader) Upload(ctx context.Context, filename, contentType string, body io.Reader) (*models.Asset, error) {
	data, contentType, err := readImage(body, contentType, u.maxBytes)
	if err != nil {
		return nil, err
	}
	return u.assets.UploadImage(ctx, filename, contentType, bytes.NewReader(data))
}
