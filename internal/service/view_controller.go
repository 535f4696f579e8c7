package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lprview/internal/domain"
	"lprview/internal/repository"
	"lprview/internal/session"
)

const (
	NoticeNoImage      = "Please select an image first"
	NoticeUploadFailed = "Upload failed"
)

// ErrNoImageSelected is returned by Detect when the view has no selection.
var ErrNoImageSelected = errors.New("no image selected")

// Uploader sends an image to the detection backend.
type Uploader interface {
	Detect(ctx context.Context, img *domain.SelectedImage) ([]domain.DetectionResult, error)
}

// Page is the render model of the detection view.
type Page struct {
	SelectedName string
	Results      []domain.DetectionResult
	Notice       string
	CSVURL       string
}

type ViewController interface {
	SelectImage(ctx context.Context, sessionID string, img *domain.SelectedImage) error
	Detect(ctx context.Context, sessionID string) error
	Page(ctx context.Context, sessionID string) (*Page, error)
}

type viewController struct {
	store    session.Store
	uploader Uploader
	archive  repository.ImageArchive
	csvURL   string
	log      *zap.Logger
}

// NewViewController wires the view to its session store and uploader. archive
// may be nil.
func NewViewController(store session.Store, uploader Uploader, archive repository.ImageArchive, csvURL string, log *zap.Logger) ViewController {
	return &viewController{
		store:    store,
		uploader: uploader,
		archive:  archive,
		csvURL:   csvURL,
		log:      log,
	}
}

func (v *viewController) SelectImage(ctx context.Context, sessionID string, img *domain.SelectedImage) error {
	if img == nil {
		v.log.Debug("Empty file selection ignored", zap.String("session", sessionID))
		return nil
	}

	st, err := v.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load view state: %w", err)
	}

	st.Selected = img
	if err := v.store.Put(ctx, sessionID, st); err != nil {
		return fmt.Errorf("save view state: %w", err)
	}

	v.log.Info("Image selected",
		zap.String("session", sessionID),
		zap.String("filename", img.Filename),
		zap.String("content_type", img.ContentType),
		zap.Int64("size", img.Size))

	return nil
}

// Detect uploads the selected image. On failure the previous results stay in
// place and a notice is queued for the next render.
func (v *viewController) Detect(ctx context.Context, sessionID string) error {
	st, err := v.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load view state: %w", err)
	}

	if st.Selected == nil {
		st.Notice = NoticeNoImage
		if err := v.store.Put(ctx, sessionID, st); err != nil {
			return fmt.Errorf("save view state: %w", err)
		}
		return ErrNoImageSelected
	}

	img := st.Selected
	results, uploadErr := v.uploader.Detect(ctx, img)

	// the upload may have taken a while; apply the outcome to the latest state
	st, err = v.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reload view state: %w", err)
	}

	if uploadErr != nil {
		v.log.Error("Detection failed",
			zap.String("session", sessionID),
			zap.String("filename", img.Filename),
			zap.Error(uploadErr))
		st.Notice = NoticeUploadFailed
		if err := v.store.Put(ctx, sessionID, st); err != nil {
			return fmt.Errorf("save view state: %w", err)
		}
		return uploadErr
	}

	st.Results = results
	if err := v.store.Put(ctx, sessionID, st); err != nil {
		return fmt.Errorf("save view state: %w", err)
	}

	if v.archive != nil {
		if _, err := v.archive.ArchiveDetection(ctx, img, results); err != nil {
			v.log.Warn("Failed to archive detection",
				zap.String("session", sessionID),
				zap.Error(err))
		}
	}

	return nil
}

// Page builds the render model. A pending notice is consumed so it is shown
// exactly once.
func (v *viewController) Page(ctx context.Context, sessionID string) (*Page, error) {
	st, err := v.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load view state: %w", err)
	}

	page := &Page{
		Results: st.Results,
		Notice:  st.Notice,
		CSVURL:  v.csvURL,
	}
	if st.Selected != nil {
		page.SelectedName = st.Selected.Filename
	}

	if st.Notice != "" {
		st.Notice = ""
		if err := v.store.Put(ctx, sessionID, st); err != nil {
			return nil, fmt.Errorf("save view state: %w", err)
		}
	}

	return page, nil
}
