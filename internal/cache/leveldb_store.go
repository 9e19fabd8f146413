package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// leveldb 键布局：
//
//	g:<generation>              -> 创建时间（UnixNano）
//	e:<generation>\x00<key>     -> gob(levelEntry)
const (
	generationPrefix = "g:"
	entryPrefix      = "e:"
	keySeparator     = "\x00"
)

// NewLevelDBStorage 在 basePath/leveldb 下打开（或创建）数据库。
func NewLevelDBStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	dir := filepath.Join(basePath, "leveldb")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelStorage{db: db}, nil
}

type levelStorage struct {
	db *leveldb.DB

	// mu 串行化代号的创建与删除；条目写入持读锁并确认代号仍存在。
	mu sync.RWMutex
}

type levelEntry struct {
	URL      string
	Final    string
	Status   int
	Type     ResponseType
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

func (s *levelStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validGenerationName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marker := []byte(generationPrefix + name)
	ok, err := s.db.Has(marker, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		created := strconv.FormatInt(time.Now().UnixNano(), 10)
		if err := s.db.Put(marker, []byte(created), nil); err != nil {
			return nil, err
		}
	}
	return &levelGeneration{storage: s, name: name}, nil
}

func (s *levelStorage) Match(ctx context.Context, req *Request) (*Response, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return matchInOrder(ctx, names, req, func(_ context.Context, name, key string) (*Response, error) {
		return s.get(name, key)
	})
}

func (s *levelStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type generation struct {
		name    string
		created int64
	}
	var gens []generation

	it := s.db.NewIterator(util.BytesPrefix([]byte(generationPrefix)), nil)
	for it.Next() {
		name := strings.TrimPrefix(string(it.Key()), generationPrefix)
		created, _ := strconv.ParseInt(string(it.Value()), 10, 64)
		gens = append(gens, generation{name: name, created: created})
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}

	sort.SliceStable(gens, func(i, j int) bool {
		if gens[i].created == gens[j].created {
			return gens[i].name < gens[j].name
		}
		return gens[i].created < gens[j].created
	})
	names := make([]string, len(gens))
	for i, g := range gens {
		names[i] = g.name
	}
	return names, nil
}

func (s *levelStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validGenerationName(name); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marker := []byte(generationPrefix + name)
	ok, err := s.db.Has(marker, nil)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	batch := new(leveldb.Batch)
	batch.Delete(marker)
	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix+name+keySeparator)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *levelStorage) Close() error {
	return s.db.Close()
}

func (s *levelStorage) get(name, key string) (*Response, error) {
	raw, err := s.db.Get(entryKey(name, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ent levelEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&ent); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	header := ent.Header
	if header == nil {
		header = http.Header{}
	}
	return &Response{
		URL:      ent.Final,
		Status:   ent.Status,
		Header:   header,
		Type:     ent.Type,
		Body:     ent.Body,
		StoredAt: ent.StoredAt,
	}, nil
}

type levelGeneration struct {
	storage *levelStorage
	name    string
}

func (g *levelGeneration) Name() string {
	return g.name
}

func (g *levelGeneration) Match(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := RequestKey(req)
	if err != nil {
		return nil, ErrNotFound
	}
	return g.storage.get(g.name, key)
}

func (g *levelGeneration) Put(ctx context.Context, req *Request, resp *Response) error {
	key, err := RequestKey(req)
	if err != nil {
		return err
	}
	if err := checkStorable(resp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	ent := levelEntry{
		URL:      req.URL,
		Final:    resp.URL,
		Status:   resp.Status,
		Type:     resp.Type,
		Header:   resp.Header,
		Body:     resp.Body,
		StoredAt: time.Now().UTC(),
	}
	if err := gob.NewEncoder(&buf).Encode(ent); err != nil {
		return err
	}

	g.storage.mu.RLock()
	defer g.storage.mu.RUnlock()

	ok, err := g.storage.db.Has([]byte(generationPrefix+g.name), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrGenerationGone, g.name)
	}
	return g.storage.db.Put(entryKey(g.name, key), buf.Bytes(), nil)
}

func (g *levelGeneration) Delete(ctx context.Context, req *Request) (bool, error) {
	key, err := RequestKey(req)
	if err != nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := entryKey(g.name, key)
	ok, err := g.storage.db.Has(k, nil)
	if err != nil || !ok {
		return false, err
	}
	if err := g.storage.db.Delete(k, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (g *levelGeneration) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var urls []string
	it := g.storage.db.NewIterator(util.BytesPrefix([]byte(entryPrefix+g.name+keySeparator)), nil)
	for it.Next() {
		var ent levelEntry
		if err := gob.NewDecoder(bytes.NewReader(it.Value())).Decode(&ent); err != nil {
			continue
		}
		urls = append(urls, ent.URL)
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Strings(urls)
	return urls, nil
}

func entryKey(name, key string) []byte {
	return []byte(entryPrefix + name + keySeparator + key)
}

func validGenerationName(name string) error {
	if name == "" || strings.Contains(name, keySeparator) {
		return fmt.Errorf("invalid cache name %q", name)
	}
	return nil
}
