package cache

import "fmt"

// 后端名称与配置中的 StorageBackend 一致。
const (
	BackendFS      = "fs"
	BackendLevelDB = "leveldb"
)

// NewStorage 根据后端名称构建缓存存储，整站复用一份实例。
func NewStorage(backend, basePath string) (Storage, error) {
	switch backend {
	case "", BackendFS:
		return NewFileStorage(basePath)
	case BackendLevelDB:
		return NewLevelDBStorage(basePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
