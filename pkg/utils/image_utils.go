package utils

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lprview/internal/domain"
)

// ContentType picks the MIME type for an image: the declared header wins,
// then the file extension, then content sniffing.
func ContentType(filename, declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}

	return http.DetectContentType(data)
}

// ReadImageFile loads a local file as a SelectedImage.
func ReadImageFile(path string) (*domain.SelectedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	name := filepath.Base(path)
	return &domain.SelectedImage{
		Filename:    name,
		ContentType: ContentType(name, "", data),
		Size:        int64(len(data)),
		Data:        data,
		SelectedAt:  time.Now(),
	}, nil
}

// ReadFormFile loads an uploaded multipart part as a SelectedImage.
func ReadFormFile(fh *multipart.FileHeader) (*domain.SelectedImage, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open form file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read form file: %w", err)
	}

	return &domain.SelectedImage{
		Filename:    fh.Filename,
		ContentType: ContentType(fh.Filename, fh.Header.Get("Content-Type"), data),
		Size:        int64(len(data)),
		Data:        data,
		SelectedAt:  time.Now(),
	}, nil
}
