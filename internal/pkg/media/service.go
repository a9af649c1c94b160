package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/app/repository"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/events"
	"github.com/ManuelReschke/mediabridge/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/mediabridge/internal/pkg/storage"
	"github.com/ManuelReschke/mediabridge/internal/pkg/upload"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

// Warmer schedules preset variants to be derived ahead of the first read
type Warmer interface {
	Enqueue(ctx context.Context, id string, presets []string) error
}

// Options configure the lifecycle service
type Options struct {
	MaxImageWidth int
	WarmPresets   []string
	PublicBaseURL string
	// remote images, see FromURL and Ingest
	HTTPClient    *http.Client
	FetchTimeout  time.Duration
	FetchMaxBytes int64
}

// Service drives the STAGED to LIVE lifecycle of media records on top of a storage backend.
type Service struct {
	backend storage.Backend
	repo    repository.MediaRepository
	parser  *variant.Parser
	events  events.Publisher
	warmer  Warmer
	opts    Options
}

// NewService creates the lifecycle service. publisher and warmer may be nil.
func NewService(backend storage.Backend, repo repository.MediaRepository, parser *variant.Parser, publisher events.Publisher, warmer Warmer, opts Options) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if opts.MaxImageWidth <= 0 {
		opts.MaxImageWidth = imageprocessor.DefaultMaxWidth
	}
	opts.PublicBaseURL = strings.TrimSuffix(opts.PublicBaseURL, "/")
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.FetchMaxBytes <= 0 {
		opts.FetchMaxBytes = defaultFetchMaxBytes
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = newFetchClient(opts.FetchTimeout)
	}
	return &Service{
		backend: backend,
		repo:    repo,
		parser:  parser,
		events:  publisher,
		warmer:  warmer,
		opts:    opts,
	}
}

// Backend returns the active storage backend
func (s *Service) Backend() storage.Backend {
	return s.backend
}

// Stage creates or refreshes the record of an item that is about to be uploaded.
// An empty system means the active backend.
func (s *Service) Stage(ctx context.Context, account, system string, req StageRequest) (*StageResult, error) {
	if system == "" {
		system = s.backend.Name()
	}
	if !strings.EqualFold(system, s.backend.Name()) {
		return nil, fmt.Errorf("%w: %s (active: %s)", apperror.ErrUnsupportedBackend, system, s.backend.Name())
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = NewID()
	}
	origin := req.Origin
	if origin == "" {
		origin = models.ORIGIN_UPLOAD
	}

	now := time.Now().UTC()
	set := map[string]interface{}{
		models.FieldSystem:   s.backend.Name(),
		models.FieldOrigin:   origin,
		models.FieldStatus:   models.STATUS_STAGED,
		models.FieldModified: now,
	}
	switch origin {
	case models.ORIGIN_URL:
		set[models.FieldFile] = req.ID + variant.RootExt
		set[models.FieldType] = imageprocessor.PNGContentType
		set[models.FieldURL] = req.URL
	default:
		set[models.FieldFile] = req.ID + "." + imageprocessor.Extension("", req.Type)
		set[models.FieldType] = req.Type
		set[models.FieldSize] = req.Size
	}
	if req.Captured != nil {
		set[models.FieldCaptured] = req.Captured.UTC()
	}

	setOnInsert := map[string]interface{}{
		models.FieldCreated:   now,
		models.FieldCreatedBy: account,
		models.FieldAccount:   account,
	}
	if req.Classification != "" {
		setOnInsert[models.FieldClassification] = req.Classification
	}
	if err := s.repo.Upsert(ctx, req.ID, set, setOnInsert); err != nil {
		return nil, err
	}

	log.Infof("[Media] Staged %s on %s for %s", req.ID, s.backend.Name(), account)
	events.PublishAsync(s.events, events.Event{Type: events.TypeStaged, ID: req.ID, Account: account, System: s.backend.Name()})
	return &StageResult{ID: req.ID, Status: models.STATUS_STAGED}, nil
}

// Upload stores the bytes of a staged item and makes it live. Images are normalized to
// PNG, optionally cropped and scaled by options, and capped at the configured width.
func (s *Service) Upload(ctx context.Context, account, id string, file UploadFile, options map[string]string) (*UploadResult, error) {
	item, err := s.repo.FindOne(ctx, id)
	if err != nil {
		return nil, notStaged(id, err)
	}
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", apperror.ErrInvalidInput)
	}
	if err := upload.ScreenFile(file.Filename, file.ContentType, file.Data); err != nil {
		return nil, err
	}

	contentType := imageprocessor.DetectContentType(file.ContentType, file.Filename, file.Data)
	data := file.Data
	path := id + "." + imageprocessor.Extension(file.Filename, contentType)
	isImage := imageprocessor.IsImage(contentType)

	var captured time.Time
	if isImage {
		if item.Captured == nil {
			if ts, ok := imageprocessor.CapturedAt(data); ok {
				captured = ts
			}
		}
		d := s.parser.Parse(id, options)
		if data, err = imageprocessor.Normalize(ctx, data, d, s.opts.MaxImageWidth); err != nil {
			return nil, err
		}
		contentType = imageprocessor.PNGContentType
		path = id + variant.RootExt
	}

	url, err := s.backend.PutImage(ctx, id, path, contentType, data, true)
	if err != nil {
		return nil, err
	}

	if !captured.IsZero() {
		set := map[string]interface{}{models.FieldCaptured: captured}
		if err := s.repo.Upsert(ctx, id, set, nil); err != nil {
			log.Warnf("[Media] Failed to record capture time of %s: %v", id, err)
		}
	}

	log.Infof("[Media] %s is live at %s (%s, %d bytes)", id, url, contentType, len(data))
	events.PublishAsync(s.events, events.Event{Type: events.TypeLive, ID: id, Account: account, System: s.backend.Name(), URL: url})
	if isImage {
		s.warm(ctx, id)
	}
	return &UploadResult{ID: id, Status: models.STATUS_LIVE, URL: url, Type: contentType}, nil
}

func notStaged(id string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("%w: %s", apperror.ErrNotStaged, id)
	}
	return err
}

func (s *Service) warm(ctx context.Context, id string) {
	if s.warmer == nil || len(s.opts.WarmPresets) == 0 {
		return
	}
	if err := s.warmer.Enqueue(ctx, id, s.opts.WarmPresets); err != nil {
		log.Warnf("[Media] Failed to schedule warm-up of %s: %v", id, err)
	}
}

// Props returns the metadata record of id
func (s *Service) Props(ctx context.Context, id string) (*models.MediaItem, error) {
	return s.repo.FindOne(ctx, id)
}

// fields a props update may not touch
var protectedProps = map[string]bool{
	models.FieldID:        true,
	models.FieldStatus:    true,
	models.FieldVariants:  true,
	models.FieldCreated:   true,
	models.FieldCreatedBy: true,
	models.FieldModified:  true,
}

var recordFields = map[string]bool{
	models.FieldType:           true,
	models.FieldSize:           true,
	models.FieldSystem:         true,
	models.FieldOrigin:         true,
	models.FieldURL:            true,
	models.FieldFile:           true,
	models.FieldAccount:        true,
	models.FieldClassification: true,
}

// PutProps upserts metadata. Known record fields are set directly, anything else is
// merged into props. A new record starts staged; an existing record keeps its status.
func (s *Service) PutProps(ctx context.Context, account string, body map[string]interface{}) (*models.MediaItem, error) {
	id, _ := body[models.FieldID].(string)
	if id == "" {
		id = NewID()
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOne(ctx, id)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	set := map[string]interface{}{models.FieldModified: now}
	props := models.Props{}
	if existing != nil {
		for k, v := range existing.Props {
			props[k] = v
		}
	}
	for key, value := range body {
		switch {
		case protectedProps[key]:
		case key == models.FieldCaptured:
			ts, err := parseTime(value)
			if err != nil {
				return nil, err
			}
			set[models.FieldCaptured] = ts
		case key == models.FieldProps:
			if m, ok := value.(map[string]interface{}); ok {
				for k, v := range m {
					props[k] = v
				}
			}
		case recordFields[key]:
			set[key] = value
		default:
			props[key] = value
		}
	}
	if len(props) > 0 {
		set[models.FieldProps] = props
	}

	setOnInsert := map[string]interface{}{
		models.FieldStatus:    models.STATUS_STAGED,
		models.FieldCreated:   now,
		models.FieldCreatedBy: account,
	}
	if _, ok := set[models.FieldURL]; !ok {
		setOnInsert[models.FieldURL] = s.opts.PublicBaseURL + "/media/image/id/" + id
	}
	if _, ok := set[models.FieldAccount]; !ok {
		setOnInsert[models.FieldAccount] = account
	}
	if err := s.repo.Upsert(ctx, id, set, setOnInsert); err != nil {
		return nil, err
	}
	return s.repo.FindOne(ctx, id)
}

func parseTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: captured: %v", apperror.ErrInvalidInput, err)
		}
		return ts.UTC(), nil
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: captured has unsupported type %T", apperror.ErrInvalidInput, v)
}

// Image returns the PNG bytes of a variant
func (s *Service) Image(ctx context.Context, id string, options map[string]string) ([]byte, error) {
	return s.backend.Get(ctx, id, options)
}

// File returns a stored object by path
func (s *Service) File(ctx context.Context, path string) ([]byte, string, error) {
	return s.backend.Open(ctx, path)
}

// List returns the root ids under prefix
func (s *Service) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// Rotate turns the original of id clockwise by degrees
func (s *Service) Rotate(ctx context.Context, account, id string, degrees float64) error {
	if degrees == 0 {
		return fmt.Errorf("%w: rotateDegree is required", apperror.ErrInvalidInput)
	}
	ok, err := s.backend.Rotate(ctx, id, degrees)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", apperror.ErrNotFound, id)
	}
	events.PublishAsync(s.events, events.Event{Type: events.TypeRotated, ID: id, Account: account, System: s.backend.Name()})
	return nil
}

// Remove deletes each of the comma separated ids with all of its variants and its
// record. Unknown ids are skipped; ErrNotFound is returned only when none existed.
func (s *Service) Remove(ctx context.Context, account, ids string) error {
	var list []string
	seen := map[string]bool{}
	for _, id := range strings.Split(ids, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		list = append(list, id)
	}
	if len(list) == 0 {
		return fmt.Errorf("%w: id is required", apperror.ErrInvalidInput)
	}

	removed := 0
	for _, id := range list {
		ok, err := s.backend.Remove(ctx, id)
		if err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
		if !ok {
			log.Debugf("[Media] Nothing to remove for %s", id)
			continue
		}
		removed++
		events.PublishAsync(s.events, events.Event{Type: events.TypeDeleted, ID: id, Account: account, System: s.backend.Name()})
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", apperror.ErrNotFound, strings.Join(list, ","))
	}
	return nil
}

// Warm derives the given presets of id. Used by warm-up jobs.
func (s *Service) Warm(ctx context.Context, id string, presets []string) error {
	var errs []error
	for _, preset := range presets {
		if _, err := s.backend.Get(ctx, id, map[string]string{"preset": preset}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", preset, err))
		}
	}
	return errors.Join(errs...)
}
