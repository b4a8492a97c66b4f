package data

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
)

// outOfCoreStore keeps its payload in an afs storage object and loads it on
// access. Loads and writes through it panic on storage failure; the
// pipeline converts filter panics into runtime errors.
type outOfCoreStore struct {
	fs    afs.Service
	dir   string
	url   string
	dtype DataType
	n     int
	cache []byte
	dirty bool
}

func (s *outOfCoreStore) DataType() DataType { return s.dtype }
func (s *outOfCoreStore) Len() int           { return s.n }
func (s *outOfCoreStore) Placeholder() bool  { return false }
func (s *outOfCoreStore) Resident() uint64   { return uint64(len(s.cache)) }

// URL returns the storage location of the payload.
func (s *outOfCoreStore) URL() string { return s.url }

func (s *outOfCoreStore) load() {
	if s.cache != nil {
		return
	}
	b, err := s.fs.DownloadWithURL(context.Background(), s.url)
	if err != nil {
		panic(fmt.Errorf("out-of-core load %s: %w", s.url, err))
	}
	s.cache = b
}

func (s *outOfCoreStore) Value(i int) float64 {
	s.load()
	return s.dtype.decode(s.cache, i)
}

func (s *outOfCoreStore) SetValue(i int, v float64) {
	s.load()
	s.dtype.encode(s.cache, i, v)
	s.dirty = true
}

func (s *outOfCoreStore) Bytes() ([]byte, error) {
	if s.cache != nil {
		return s.cache, nil
	}
	b, err := s.fs.DownloadWithURL(context.Background(), s.url)
	if err != nil {
		return nil, fmt.Errorf("out-of-core read %s: %w", s.url, err)
	}
	return b, nil
}

func (s *outOfCoreStore) Resize(n int) {
	s.load()
	buf := make([]byte, n*s.dtype.Size())
	copy(buf, s.cache)
	s.cache = buf
	s.n = n
	s.dirty = true
}

// Clone copies the payload to a new storage object.
func (s *outOfCoreStore) Clone() ArrayStore {
	b, err := s.Bytes()
	if err != nil {
		panic(err)
	}
	dst := url.Join(s.dir, uuid.NewString()+".bin")
	if err := s.fs.Upload(context.Background(), dst, 0o644, bytes.NewReader(b)); err != nil {
		panic(fmt.Errorf("out-of-core clone %s: %w", dst, err))
	}
	return &outOfCoreStore{fs: s.fs, dir: s.dir, url: dst, dtype: s.dtype, n: s.n}
}

// Release flushes pending writes and drops the cached payload.
func (s *outOfCoreStore) Release(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if s.dirty {
		if err := s.fs.Upload(ctx, s.url, 0o644, bytes.NewReader(s.cache)); err != nil {
			return fmt.Errorf("out-of-core flush %s: %w", s.url, err)
		}
		s.dirty = false
	}
	s.cache = nil
	return nil
}

// discard deletes the storage object. The store is unusable afterwards.
func (s *outOfCoreStore) discard(ctx context.Context) error {
	s.cache = nil
	s.dirty = false
	if err := s.fs.Delete(ctx, s.url); err != nil {
		return fmt.Errorf("out-of-core delete %s: %w", s.url, err)
	}
	return nil
}

// Discard deletes the out-of-core payloads owned by s, including those of
// arrays already removed from it. Every clone owns its own payload copies,
// so discarding one snapshot never affects another. s must not be read
// afterwards.
func (s *Structure) Discard(ctx context.Context) error {
	var errs []error
	for _, obj := range s.objects {
		if a, ok := obj.(*Array); ok {
			if oc, ok := a.store.(*outOfCoreStore); ok {
				errs = append(errs, oc.discard(ctx))
			}
		}
	}
	for _, oc := range s.orphans {
		errs = append(errs, oc.discard(ctx))
	}
	s.orphans = nil
	return errors.Join(errs...)
}

// Spiller moves array payloads out of core once a Structure's resident
// memory exceeds a threshold.
type Spiller struct {
	fs        afs.Service
	baseURL   string
	threshold uint64
}

// NewSpiller returns a Spiller writing payloads beneath baseURL, which may be
// any afs URL (file://, mem://) or a plain directory path.
func NewSpiller(baseURL string, threshold uint64) *Spiller {
	return &Spiller{fs: afs.New(), baseURL: baseURL, threshold: threshold}
}

// Threshold returns the resident-bytes limit.
func (sp *Spiller) Threshold() uint64 { return sp.threshold }

// Spill releases cached out-of-core payloads and, while the structure stays
// above the threshold, moves the largest resident arrays out of core. It
// returns the number of arrays moved.
func (sp *Spiller) Spill(ctx context.Context, ds *Structure) (int, error) {
	for _, obj := range ds.objects {
		if a, ok := obj.(*Array); ok {
			if oc, ok := a.store.(*outOfCoreStore); ok {
				if err := oc.Release(ctx); err != nil {
					return 0, err
				}
			}
		}
	}
	usage := ds.MemoryUsage()
	if usage <= sp.threshold {
		return 0, nil
	}

	var candidates []*Array
	for _, obj := range ds.objects {
		if a, ok := obj.(*Array); ok {
			if _, ok := a.store.(*memoryStore); ok && a.store.Resident() > 0 {
				candidates = append(candidates, a)
			}
		}
	}
	slices.SortFunc(candidates, func(a, b *Array) int {
		if a.store.Resident() != b.store.Resident() {
			if a.store.Resident() > b.store.Resident() {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.ID(), b.ID())
	})

	moved := 0
	for _, a := range candidates {
		if usage <= sp.threshold {
			break
		}
		payload, _ := a.store.Bytes()
		dst := url.Join(sp.baseURL, uuid.NewString()+".bin")
		if err := sp.fs.Upload(ctx, dst, 0o644, bytes.NewReader(payload)); err != nil {
			return moved, fmt.Errorf("spill %q: %w", a.Name(), err)
		}
		usage -= a.store.Resident()
		a.store = &outOfCoreStore{fs: sp.fs, dir: sp.baseURL, url: dst, dtype: a.store.DataType(), n: a.store.Len()}
		moved++
		slog.Debug("array moved out of core", "name", a.Name(), "id", a.ID(), "url", dst)
	}
	return moved, nil
}

// OutOfCore reports whether a's payload is stored out of core.
func OutOfCore(a *Array) bool {
	_, ok := a.store.(*outOfCoreStore)
	return ok
}
