package cache

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	generationMarker = ".generation"
	entrySuffix      = ".entry"
)

// NewFileStorage 以 basePath 为根目录构建磁盘缓存，每个代号对应一个子目录。
func NewFileStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStorage{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStorage 通过 entryLock 避免同一条目并发写入；genMu 让条目写入与整代删除互斥。
type fileStorage struct {
	basePath string

	genMu sync.RWMutex

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// entryMeta 是条目文件首行的 JSON 头，正文紧随其后。
type entryMeta struct {
	Key      string       `json:"key"`
	URL      string       `json:"url"`
	Final    string       `json:"response_url"`
	Status   int          `json:"status"`
	Type     ResponseType `json:"type"`
	Header   http.Header  `json:"header"`
	StoredAt time.Time    `json:"stored_at"`
}

func (s *fileStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.generationDir(name)
	if err != nil {
		return nil, err
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	marker := filepath.Join(dir, generationMarker)
	f, err := os.OpenFile(marker, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case err == nil:
		_, werr := f.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
		cerr := f.Close()
		if werr != nil {
			return nil, werr
		}
		if cerr != nil {
			return nil, cerr
		}
	case errors.Is(err, fs.ErrExist):
	default:
		return nil, err
	}

	return &fileGeneration{storage: s, name: name, dir: dir}, nil
}

func (s *fileStorage) Match(ctx context.Context, req *Request) (*Response, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return matchInOrder(ctx, names, req, func(_ context.Context, name, key string) (*Response, error) {
		dir, err := s.generationDir(name)
		if err != nil {
			return nil, err
		}
		return readEntry(entryPath(dir, key))
	})
}

func (s *fileStorage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirs, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}

	type generation struct {
		name    string
		created time.Time
	}
	gens := make([]generation, 0, len(dirs))
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		gens = append(gens, generation{name: d.Name(), created: s.createdAt(d)})
	}
	sort.SliceStable(gens, func(i, j int) bool {
		if gens[i].created.Equal(gens[j].created) {
			return gens[i].name < gens[j].name
		}
		return gens[i].created.Before(gens[j].created)
	})

	names := make([]string, len(gens))
	for i, g := range gens {
		names[i] = g.name
	}
	return names, nil
}

func (s *fileStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dir, err := s.generationDir(name)
	if err != nil {
		return false, err
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStorage) Close() error {
	return nil
}

// createdAt 读取代号目录的创建时间标记，缺失时退回目录 ModTime。
func (s *fileStorage) createdAt(d fs.DirEntry) time.Time {
	raw, err := os.ReadFile(filepath.Join(s.basePath, d.Name(), generationMarker))
	if err == nil {
		if ts, perr := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw))); perr == nil {
			return ts
		}
	}
	if info, err := d.Info(); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

func (s *fileStorage) generationDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid cache name %q", name)
	}
	return filepath.Join(s.basePath, name), nil
}

func (s *fileStorage) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// fileGeneration 是单个代号目录的 Store 视图。
type fileGeneration struct {
	storage *fileStorage
	name    string
	dir     string
}

func (g *fileGeneration) Name() string {
	return g.name
}

func (g *fileGeneration) Match(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := RequestKey(req)
	if err != nil {
		return nil, ErrNotFound
	}
	return readEntry(entryPath(g.dir, key))
}

func (g *fileGeneration) Put(ctx context.Context, req *Request, resp *Response) error {
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

	g.storage.genMu.RLock()
	defer g.storage.genMu.RUnlock()

	if _, err := os.Stat(filepath.Join(g.dir, generationMarker)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrGenerationGone, g.name)
		}
		return err
	}

	unlock := g.storage.lockEntry(g.name + "::" + key)
	defer unlock()

	meta := entryMeta{
		Key:      key,
		URL:      req.URL,
		Final:    resp.URL,
		Status:   resp.Status,
		Type:     resp.Type,
		Header:   resp.Header,
		StoredAt: time.Now().UTC(),
	}
	head, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(g.dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = io.Copy(tempFile, io.MultiReader(bytes.NewReader(head), strings.NewReader("\n"), bytes.NewReader(resp.Body)))
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, entryPath(g.dir, key)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (g *fileGeneration) Delete(ctx context.Context, req *Request) (bool, error) {
	key, err := RequestKey(req)
	if err != nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	unlock := g.storage.lockEntry(g.name + "::" + key)
	defer unlock()

	if err := os.Remove(entryPath(g.dir, key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (g *fileGeneration) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := os.ReadDir(g.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	urls := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), entrySuffix) {
			continue
		}
		meta, err := readEntryMeta(filepath.Join(g.dir, f.Name()))
		if err != nil {
			continue
		}
		urls = append(urls, meta.URL)
	}
	sort.Strings(urls)
	return urls, nil
}

func entryPath(dir, key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+entrySuffix)
}

func readEntry(path string) (*Response, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	meta, err := decodeEntryMeta(reader)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	return &Response{
		URL:      meta.Final,
		Status:   meta.Status,
		Header:   meta.Header,
		Type:     meta.Type,
		Body:     body,
		StoredAt: meta.StoredAt,
	}, nil
}

func readEntryMeta(path string) (entryMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return entryMeta{}, err
	}
	defer f.Close()
	return decodeEntryMeta(bufio.NewReader(f))
}

func decodeEntryMeta(reader *bufio.Reader) (entryMeta, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return entryMeta{}, fmt.Errorf("read cache entry header: %w", err)
	}
	var meta entryMeta
	if err := json.Unmarshal(line, &meta); err != nil {
		return entryMeta{}, fmt.Errorf("decode cache entry header: %w", err)
	}
	if meta.Header == nil {
		meta.Header = http.Header{}
	}
	return meta, nil
}
