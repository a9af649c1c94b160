package media_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/app/repository"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/events"
	"github.com/ManuelReschke/mediabridge/internal/pkg/media"
	"github.com/ManuelReschke/mediabridge/internal/pkg/objectstore"
	"github.com/ManuelReschke/mediabridge/internal/pkg/storage"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	ch     chan events.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan events.Event, 16)}
}

func (r *recorder) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) wait(t *testing.T, typ string) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return events.Event{}
		}
	}
}

type warmRecorder struct {
	mu      sync.Mutex
	id      string
	presets []string
}

func (w *warmRecorder) Enqueue(ctx context.Context, id string, presets []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.id, w.presets = id, presets
	return nil
}

type env struct {
	svc    *media.Service
	repo   repository.MediaRepository
	events *recorder
	warm   *warmRecorder
}

func newEnv(t *testing.T, opts media.Options) *env {
	t.Helper()
	repo := repository.NewMemoryMediaRepository()
	parser := variant.DefaultParser()
	backend := storage.NewObjectStoreBackend(objectstore.NewMemoryClient("https://cdn.test"),
		storage.Deps{Media: repo, Parser: parser}, storage.Options{KeyPrefix: "media/"})
	rec := newRecorder()
	warm := &warmRecorder{}
	return &env{
		svc:    media.NewService(backend, repo, parser, rec, warm, opts),
		repo:   repo,
		events: rec,
		warm:   warm,
	}
}

func jpegImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func pngSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "png", format)
	return cfg.Width, cfg.Height
}

func TestStageUploadServe(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{WarmPresets: []string{"icon"}})
	ctx := context.Background()

	staged, err := e.svc.Stage(ctx, "acct-1", "aws", media.StageRequest{ID: "abc", Type: "image/jpeg", Size: 1234})
	require.NoError(t, err)
	assert.Equal(t, &media.StageResult{ID: "abc", Status: models.STATUS_STAGED}, staged)
	e.events.wait(t, events.TypeStaged)

	item, err := e.svc.Props(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_STAGED, item.Status)
	assert.Equal(t, "abc.jpeg", item.File)
	assert.Equal(t, "acct-1", item.CreatedBy)

	res, err := e.svc.Upload(ctx, "acct-1", "abc", media.UploadFile{Filename: "photo.jpg", ContentType: "image/jpeg", Data: jpegImage(t, 200, 100)}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_LIVE, res.Status)
	assert.Equal(t, "image/png", res.Type)
	assert.Equal(t, "https://cdn.test/media/abc.png", res.URL)
	live := e.events.wait(t, events.TypeLive)
	assert.Equal(t, res.URL, live.URL)

	item, err = e.svc.Props(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_LIVE, item.Status)
	assert.Equal(t, "image/png", item.Type)
	assert.Equal(t, "abc.png", item.File)

	root, err := e.svc.Image(ctx, "abc", nil)
	require.NoError(t, err)
	w, h := pngSize(t, root)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)

	same, err := e.svc.Image(ctx, "abc.png", nil)
	require.NoError(t, err)
	assert.Equal(t, root, same)

	icon, err := e.svc.Image(ctx, "abc.icon", nil)
	require.NoError(t, err)
	w, h = pngSize(t, icon)
	assert.Equal(t, 60, w)
	assert.Equal(t, 60, h)

	e.warm.mu.Lock()
	assert.Equal(t, "abc", e.warm.id)
	assert.Equal(t, []string{"icon"}, e.warm.presets)
	e.warm.mu.Unlock()
}

func TestUploadRequiresStage(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{})

	_, err := e.svc.Upload(context.Background(), "acct", "nope", media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 10, 10)}, nil)
	assert.ErrorIs(t, err, apperror.ErrNotStaged)
}

func TestStageValidation(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{})
	ctx := context.Background()

	_, err := e.svc.Stage(ctx, "acct", "storj", media.StageRequest{Type: "image/png"})
	assert.ErrorIs(t, err, apperror.ErrUnsupportedBackend)

	_, err = e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "a.b", Type: "image/png"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = e.svc.Stage(ctx, "acct", "", media.StageRequest{Origin: "url"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	res, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{Origin: "url", URL: "https://example.com/a.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	item, err := e.svc.Props(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ORIGIN_URL, item.Origin)
	assert.Equal(t, res.ID+".png", item.File)
	assert.Equal(t, "https://example.com/a.png", item.URL)
}

func TestUploadAppliesInitialSpecAndMaxWidth(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{MaxImageWidth: 80})
	ctx := context.Background()

	_, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "wide", Type: "image/jpeg"})
	require.NoError(t, err)
	_, err = e.svc.Upload(ctx, "acct", "wide", media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 200, 100)}, nil)
	require.NoError(t, err)
	root, err := e.svc.Image(ctx, "wide", nil)
	require.NoError(t, err)
	w, h := pngSize(t, root)
	assert.Equal(t, 80, w)
	assert.Equal(t, 40, h)

	_, err = e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "cropped", Type: "image/jpeg"})
	require.NoError(t, err)
	_, err = e.svc.Upload(ctx, "acct", "cropped", media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 60, 40)}, map[string]string{"crop": "0,0,50,50"})
	require.NoError(t, err)
	root, err = e.svc.Image(ctx, "cropped", nil)
	require.NoError(t, err)
	w, h = pngSize(t, root)
	assert.Equal(t, 30, w)
	assert.Equal(t, 20, h)
}

func TestUploadNonImageKeepsType(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{WarmPresets: []string{"icon"}})
	ctx := context.Background()

	_, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "docs/report", Type: "application/pdf"})
	require.NoError(t, err)
	res, err := e.svc.Upload(ctx, "acct", "docs/report", media.UploadFile{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 test")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", res.Type)
	assert.Equal(t, "https://cdn.test/media/docs/report.pdf", res.URL)

	data, contentType, err := e.svc.File(ctx, "docs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, []byte("%PDF-1.4 test"), data)

	e.warm.mu.Lock()
	assert.Empty(t, e.warm.id)
	e.warm.mu.Unlock()
}

func TestPutPropsNeverResetsStatus(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{PublicBaseURL: "https://media.test/"})
	ctx := context.Background()

	item, err := e.svc.PutProps(ctx, "acct", map[string]interface{}{"_id": "p1", "title": "Sunset", "captured": "2024-05-01T10:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_STAGED, item.Status)
	assert.Equal(t, "https://media.test/media/image/id/p1", item.URL)
	assert.Equal(t, "Sunset", item.Props["title"])
	require.NotNil(t, item.Captured)
	assert.Equal(t, 2024, item.Captured.Year())

	_, err = e.svc.Upload(ctx, "acct", "p1", media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 20, 20)}, nil)
	require.NoError(t, err)

	item, err = e.svc.PutProps(ctx, "acct", map[string]interface{}{"_id": "p1", "status": "staged", "classification": "landscape", "tags": []interface{}{"a"}})
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_LIVE, item.Status)
	assert.Equal(t, "landscape", item.Classification)
	assert.Equal(t, "Sunset", item.Props["title"])
	assert.Contains(t, item.Props, "tags")

	_, err = e.svc.PutProps(ctx, "acct", map[string]interface{}{"_id": "p1", "captured": "yesterday"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestRotateAndRemove(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{})
	ctx := context.Background()

	_, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "r1", Type: "image/jpeg"})
	require.NoError(t, err)
	_, err = e.svc.Upload(ctx, "acct", "r1", media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 40, 20)}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, e.svc.Rotate(ctx, "acct", "r1", 0), apperror.ErrInvalidInput)
	assert.ErrorIs(t, e.svc.Rotate(ctx, "acct", "missing", 90), apperror.ErrNotFound)

	require.NoError(t, e.svc.Rotate(ctx, "acct", "r1", 90))
	e.events.wait(t, events.TypeRotated)
	root, err := e.svc.Image(ctx, "r1", nil)
	require.NoError(t, err)
	w, h := pngSize(t, root)
	assert.Equal(t, 20, w)
	assert.Equal(t, 40, h)

	ids, err := e.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)

	require.NoError(t, e.svc.Remove(ctx, "acct", "r1"))
	e.events.wait(t, events.TypeDeleted)
	_, err = e.svc.Image(ctx, "r1", nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = e.svc.Props(ctx, "r1")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, e.svc.Remove(ctx, "acct", "r1"), apperror.ErrNotFound)
}

func TestRemoveCommaSeparatedIDs(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{})
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: id, Type: "image/jpeg"})
		require.NoError(t, err)
		_, err = e.svc.Upload(ctx, "acct", id, media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 20, 20)}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, e.svc.Remove(ctx, "acct", "a1, a2,,missing,a1"))
	for _, id := range []string{"a1", "a2"} {
		_, err := e.svc.Props(ctx, id)
		assert.ErrorIs(t, err, apperror.ErrNotFound, id)
		_, err = e.svc.Image(ctx, id, nil)
		assert.ErrorIs(t, err, apperror.ErrNotFound, id)
	}
	_, err := e.svc.Props(ctx, "a3")
	require.NoError(t, err)

	ids, err := e.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a3"}, ids)

	assert.ErrorIs(t, e.svc.Remove(ctx, "acct", "a1,missing"), apperror.ErrNotFound)
	assert.ErrorIs(t, e.svc.Remove(ctx, "acct", " , "), apperror.ErrInvalidInput)
	_, err = e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "x,y", Type: "image/jpeg"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestWarmDerivesPresets(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{})
	ctx := context.Background()

	_, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "w1", Type: "image/jpeg"})
	require.NoError(t, err)
	_, err = e.svc.Upload(ctx, "acct", "w1", media.UploadFile{ContentType: "image/jpeg", Data: jpegImage(t, 100, 100)}, nil)
	require.NoError(t, err)

	require.NoError(t, e.svc.Warm(ctx, "w1", []string{"icon", "TW"}))
	item, err := e.repo.FindOne(ctx, "w1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"icon", "TW"}, []string(item.Variants))

	assert.Error(t, e.svc.Warm(ctx, "missing", []string{"icon"}))
}

func TestUploadRejectsScriptableContent(t *testing.T) {
	t.Parallel()
	e := newEnv(t, media.Options{})
	ctx := context.Background()

	_, err := e.svc.Stage(ctx, "acct", "", media.StageRequest{ID: "page", Type: "text/html"})
	require.NoError(t, err)
	_, err = e.svc.Upload(ctx, "acct", "page", media.UploadFile{Filename: "page.html", Data: []byte("<html><script>alert(1)</script></html>")}, nil)
	require.ErrorIs(t, err, apperror.ErrInvalidInput)

	item, err := e.svc.Props(ctx, "page")
	require.NoError(t, err)
	assert.Equal(t, models.STATUS_STAGED, item.Status)
}
