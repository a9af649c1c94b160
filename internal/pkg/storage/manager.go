package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ManuelReschke/mediabridge/app/models"
	"github.com/ManuelReschke/mediabridge/app/repository"
	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
	"github.com/ManuelReschke/mediabridge/internal/pkg/imageprocessor"
	"github.com/ManuelReschke/mediabridge/internal/pkg/lock"
	"github.com/ManuelReschke/mediabridge/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/mediabridge/internal/pkg/objectstore"
	"github.com/ManuelReschke/mediabridge/internal/pkg/variant"
)

const defaultRegenerateConcurrency = 4

// manager is the variant engine shared by all backends. It derives variants lazily,
// keeps the variant registry in the metadata store and serializes root mutations.
type manager struct {
	name       string
	store      objectstore.Client
	repo       repository.MediaRepository
	parser     *variant.Parser
	locker     lock.Locker
	prefix     string
	regenLimit int
	fills      singleflight.Group
}

func newManager(store objectstore.Client, deps Deps, opts Options) *manager {
	limit := opts.RegenerateConcurrency
	if limit <= 0 {
		limit = defaultRegenerateConcurrency
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &manager{
		name:       opts.Name,
		store:      store,
		repo:       deps.Media,
		parser:     deps.Parser,
		locker:     locker,
		prefix:     opts.KeyPrefix,
		regenLimit: limit,
	}
}

func (m *manager) Name() string {
	return m.name
}

func (m *manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *manager) Open(ctx context.Context, path string) ([]byte, string, error) {
	return m.store.Get(ctx, m.key(path))
}

func (m *manager) key(path string) string {
	return m.prefix + path
}

// variantPrefix matches every object of id except the ones of ids sharing its leading
// characters ("abc." never matches "abcd.png").
func (m *manager) variantPrefix(id string) string {
	return m.key(id + ".")
}

func (m *manager) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := m.store.ListByPrefix(ctx, m.key(prefix))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(keys))
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := variant.RootID(strings.TrimPrefix(k, m.prefix))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *manager) Get(ctx context.Context, rawID string, options map[string]string) ([]byte, error) {
	d := m.parser.Parse(rawID, options)
	if d.ID == "" {
		return nil, apperror.ErrBadDescriptor
	}

	key := m.key(d.Path())
	data, _, err := m.store.Get(ctx, key)
	if err == nil {
		counter.Add(ctx, m.name, counter.Hit)
		return data, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) || d.IsRoot() {
		if errors.Is(err, apperror.ErrNotFound) {
			counter.Add(ctx, m.name, counter.Miss)
		}
		return nil, err
	}

	// concurrent misses of the same variant share one derivation. The shared fill runs
	// on the leader's context; followers whose own context is still live start over when
	// the leader goes away mid-fill.
	for {
		ch := m.fills.DoChan(key, func() (interface{}, error) {
			return m.fill(ctx, d, key)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.([]byte), nil
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// fill derives a missing variant. The transform runs unlocked; the result is written
// back under the id lock and only when the root it was derived from is still current,
// so a rotate or re-upload racing the fill never leaves a stale variant behind.
func (m *manager) fill(ctx context.Context, d variant.Descriptor, key string) ([]byte, error) {
	rootKey := m.key(d.RootPath())
	root, _, err := m.store.Get(ctx, rootKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			counter.Add(ctx, m.name, counter.Miss)
		}
		return nil, err
	}
	out, err := imageprocessor.Process(ctx, root, d)
	if err != nil {
		return nil, err
	}
	counter.Add(ctx, m.name, counter.Derived)

	unlock, err := m.locker.Lock(ctx, d.ID)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		counter.Add(ctx, m.name, counter.FillFailed)
		log.Warnf("[Storage] Serving %s uncached, lock failed: %v", key, err)
		return out, nil
	}
	defer unlock()

	current, _, err := m.store.Get(ctx, rootKey)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		// removed while deriving
		counter.Add(ctx, m.name, counter.Miss)
		return nil, err
	case err != nil:
		if isContextErr(err) {
			return nil, err
		}
		counter.Add(ctx, m.name, counter.FillFailed)
		log.Errorf("[Storage] Serving %s uncached, root re-read failed: %v", key, err)
		return out, nil
	case !bytes.Equal(current, root):
		log.Debugf("[Storage] Root of %s changed while deriving %s, deriving again", d.ID, d.Spec())
		if out, err = imageprocessor.Process(ctx, current, d); err != nil {
			return nil, err
		}
		counter.Add(ctx, m.name, counter.Derived)
	}

	if err := m.store.Put(ctx, key, out, imageprocessor.PNGContentType); err != nil {
		if isContextErr(err) {
			return nil, err
		}
		counter.Add(ctx, m.name, counter.FillFailed)
		log.Errorf("[Storage] Failed to cache variant %s: %v", key, err)
		return out, nil
	}
	if err := m.repo.AddVariant(ctx, d.ID, d.Spec()); err != nil {
		log.Warnf("[Storage] Failed to register variant %s of %s: %v", d.Spec(), d.ID, err)
	}
	return out, nil
}

func (m *manager) PutImage(ctx context.Context, id, path, contentType string, data []byte, commit bool) (string, error) {
	key := m.key(path)
	if !commit {
		if err := m.store.Put(ctx, key, data, contentType); err != nil {
			return "", err
		}
		return m.store.URL(key), nil
	}

	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return "", err
	}
	defer unlock()

	item, err := m.findItem(ctx, id)
	if err != nil {
		return "", err
	}
	stale, err := m.objectKeys(ctx, id, item)
	if err != nil {
		return "", err
	}
	delete(stale, key)
	if err := m.deleteKeys(ctx, stale); err != nil {
		return "", err
	}

	if err := m.store.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}

	url := m.store.URL(key)
	now := time.Now().UTC()
	set := map[string]interface{}{
		models.FieldStatus:   models.STATUS_LIVE,
		models.FieldURL:      url,
		models.FieldType:     contentType,
		models.FieldFile:     path,
		models.FieldSize:     int64(len(data)),
		models.FieldModified: now,
		models.FieldVariants: []string{},
	}
	setOnInsert := map[string]interface{}{
		models.FieldCreated: now,
		models.FieldSystem:  m.name,
	}
	if err := m.repo.Upsert(ctx, id, set, setOnInsert); err != nil {
		return "", err
	}
	log.Infof("[Storage] Committed %s (%d bytes) to %s", id, len(data), m.name)
	return url, nil
}

func (m *manager) Remove(ctx context.Context, id string) (bool, error) {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	item, err := m.findItem(ctx, id)
	if err != nil {
		return false, err
	}
	keys, err := m.objectKeys(ctx, id, item)
	if err != nil {
		return false, err
	}
	if item == nil && len(keys) == 0 {
		return false, nil
	}
	keys[m.key(id+variant.RootExt)] = struct{}{}
	if item != nil && item.File != "" {
		keys[m.key(item.File)] = struct{}{}
	}

	if err := m.deleteKeys(ctx, keys); err != nil {
		return false, err
	}
	if item != nil {
		if _, err := m.repo.Delete(ctx, id); err != nil {
			return false, err
		}
	}
	log.Infof("[Storage] Removed %s and %d objects from %s", id, len(keys), m.name)
	return true, nil
}

func (m *manager) Rotate(ctx context.Context, id string, degrees float64) (bool, error) {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	rootKey := m.key(id + variant.RootExt)
	root, _, err := m.store.Get(ctx, rootKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	rotated, err := imageprocessor.Rotate(ctx, root, degrees)
	if err != nil {
		return false, err
	}

	item, err := m.findItem(ctx, id)
	if err != nil {
		return false, err
	}
	variantKeys, err := m.objectKeys(ctx, id, item)
	if err != nil {
		return false, err
	}
	delete(variantKeys, rootKey)
	specs := m.specsOf(id, variantKeys)

	// the root is overwritten in place, never deleted
	if err := m.deleteKeys(ctx, variantKeys); err != nil {
		return false, err
	}
	if err := m.store.Put(ctx, rootKey, rotated, imageprocessor.PNGContentType); err != nil {
		return false, fmt.Errorf("write %s: %w", rootKey, err)
	}

	m.regenerate(ctx, id, rotated, specs, item)

	if item != nil {
		set := map[string]interface{}{
			models.FieldModified: time.Now().UTC(),
			models.FieldSize:     int64(len(rotated)),
		}
		if err := m.repo.Upsert(ctx, id, set, nil); err != nil {
			return true, err
		}
	}
	return true, nil
}

// regenerate re-derives specs from root. Failures are logged; the variant is then
// derived again on its next read.
func (m *manager) regenerate(ctx context.Context, id string, root []byte, specs []string, item *models.MediaItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.regenLimit)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			d := m.parser.ParseSpec(id, spec)
			if d.IsRoot() {
				return nil
			}
			out, err := imageprocessor.Process(gctx, root, d)
			if err != nil {
				log.Errorf("[Storage] Failed to regenerate %s of %s: %v", spec, id, err)
				return nil
			}
			if err := m.store.Put(gctx, m.key(d.Path()), out, imageprocessor.PNGContentType); err != nil {
				log.Errorf("[Storage] Failed to store regenerated %s of %s: %v", spec, id, err)
				return nil
			}
			if item != nil && !item.HasVariant(d.Spec()) {
				if err := m.repo.AddVariant(gctx, id, d.Spec()); err != nil {
					log.Warnf("[Storage] Failed to register variant %s of %s: %v", d.Spec(), id, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Infof("[Storage] Regenerated %d variants of %s", len(specs), id)
}

func (m *manager) findItem(ctx context.Context, id string) (*models.MediaItem, error) {
	item, err := m.repo.FindOne(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	return item, err
}

// objectKeys returns the stored keys of id: everything under its variant prefix plus
// the paths of the variants registered on item, which may be nil.
func (m *manager) objectKeys(ctx context.Context, id string, item *models.MediaItem) (map[string]struct{}, error) {
	listed, err := m.store.ListByPrefix(ctx, m.variantPrefix(id))
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(listed))
	for _, k := range listed {
		keys[k] = struct{}{}
	}
	if item != nil {
		for _, spec := range item.Variants {
			keys[m.key(m.parser.ParseSpec(id, spec).Path())] = struct{}{}
		}
	}
	return keys, nil
}

// specsOf turns variant keys back into spec fragments
func (m *manager) specsOf(id string, keys map[string]struct{}) []string {
	base := m.variantPrefix(id)
	specs := make([]string, 0, len(keys))
	for k := range keys {
		if !strings.HasPrefix(k, base) || !strings.HasSuffix(k, variant.RootExt) {
			continue
		}
		spec := strings.TrimSuffix(strings.TrimPrefix(k, base), variant.RootExt)
		if spec != "" {
			specs = append(specs, spec)
		}
	}
	sort.Strings(specs)
	return specs
}

func (m *manager) deleteKeys(ctx context.Context, keys map[string]struct{}) error {
	if len(keys) == 0 {
		return nil
	}
	list := make([]string, 0, len(keys))
	for k := range keys {
		list = append(list, k)
	}
	sort.Strings(list)
	return m.store.DeleteMany(ctx, list)
}
