package filestore

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	badger "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

// DefaultMaxFileBytes 为单个文件的默认大小上限，512 MiB。
const DefaultMaxFileBytes = int64(512) << 20

// Options 控制文件仓库的打开方式。
type Options struct {
	// Dir 为落盘目录。InMemory 为 true 时忽略。
	Dir string `mapstructure:"dir"`

	// InMemory 为 true 时所有数据只保存在内存中，进程退出即消失。
	// 房间和文件本身就是进程级生命周期，默认开启。
	InMemory bool `mapstructure:"in-memory"`

	// MaxFileBytes 为单个文件的大小上限，非正数时取 DefaultMaxFileBytes。
	MaxFileBytes int64 `mapstructure:"max-file-bytes"`
}

// Store 以 badger 为后端保存各房间已上传的文件。
//
// 键布局：
//   - f/<roomID>/<filename> ：文件内容；
//   - m/<roomID>            ：房间文件清单，按上传顺序的 JSON 数组。
//
// 清单是冲突消解的依据：新文件名与清单中任何一项相同时，
// 在扩展名前插入 "-1" 后重试，直到不再冲突。
//
// 并发约定：Store 不加锁，调用方持中继层互斥锁串行化访问，
// 清单读改写因此不需要事务级冲突重试。
type Store struct {
	db           *badger.DB
	maxFileBytes int64
}

// Open 按给定选项打开文件仓库。
func Open(opts Options) (*Store, error) {
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{})
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, merr.WrapErrRoomStorage("", err)
	}

	// 房间是进程级生命周期，上次运行遗留的落盘数据在启动时清空。
	if !opts.InMemory {
		if err := db.DropAll(); err != nil {
			_ = db.Close()
			return nil, merr.WrapErrRoomStorage("", err)
		}
	}

	return &Store{
		db:           db,
		maxFileBytes: maxBytes,
	}, nil
}

// Close 关闭底层数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxFileBytes 返回单文件大小上限。
func (s *Store) MaxFileBytes() int64 {
	return s.maxFileBytes
}

// Put 将文件写入指定房间，返回冲突消解后的最终文件名。
//
// 规则：
//   - 文件超过大小上限时返回 ErrFileTooLarge，不写入任何数据；
//   - 名字已存在时在最后一个 '.' 之前插入 "-1"，没有 '.' 则追加到末尾，
//     仍冲突则在同一位置继续插入，photo.png、photo-1.png、photo-1-1.png。
func (s *Store) Put(roomID, filename string, data []byte) (string, error) {
	if int64(len(data)) > s.maxFileBytes {
		return "", merr.WrapErrFileTooLarge(filename, int64(len(data)), s.maxFileBytes)
	}

	finalName := filename
	err := s.db.Update(func(txn *badger.Txn) error {
		names, err := readManifest(txn, roomID)
		if err != nil {
			return err
		}

		for containsName(names, finalName) {
			finalName = deconflict(finalName)
		}

		if err := txn.Set(fileKey(roomID, finalName), data); err != nil {
			return err
		}
		return writeManifest(txn, roomID, append(names, finalName))
	})
	if err != nil {
		return "", merr.WrapErrRoomStorage(roomID, err)
	}
	return finalName, nil
}

// Get 读取指定房间内的文件内容。
func (s *Store) Get(roomID, filename string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(roomID, filename))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, merr.WrapErrFileNotFound(roomID, filename)
		}
		return nil, merr.WrapErrRoomStorage(roomID, err)
	}
	return data, nil
}

// Names 返回房间内文件名的上传顺序列表。
func (s *Store) Names(roomID string) ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		names, err = readManifest(txn, roomID)
		return err
	})
	if err != nil {
		return nil, merr.WrapErrRoomStorage(roomID, err)
	}
	return names, nil
}

// DropRoom 删除房间的全部文件和清单。
// 房间最后一名成员离开后调用，数据不保留。
func (s *Store) DropRoom(roomID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		names, err := readManifest(txn, roomID)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := txn.Delete(fileKey(roomID, name)); err != nil {
				return err
			}
		}
		return txn.Delete(manifestKey(roomID))
	})
	if err != nil {
		return merr.WrapErrRoomStorage(roomID, err)
	}
	return nil
}

func fileKey(roomID, filename string) []byte {
	return []byte("f/" + roomID + "/" + filename)
}

func manifestKey(roomID string) []byte {
	return []byte("m/" + roomID)
}

// readManifest 读取房间文件清单，清单不存在时返回空列表。
func readManifest(txn *badger.Txn, roomID string) ([]string, error) {
	item, err := txn.Get(manifestKey(roomID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := sonic.Unmarshal(raw, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func writeManifest(txn *badger.Txn, roomID string, names []string) error {
	raw, err := sonic.Marshal(names)
	if err != nil {
		return err
	}
	return txn.Set(manifestKey(roomID), raw)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// deconflict 在最后一个 '.' 之前插入 "-1"；没有 '.' 时追加到末尾。
func deconflict(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return name + "-1"
	}
	return name[:idx] + "-1" + name[idx:]
}

// badgerLogger 将 badger 的内部日志接入全局 zap。
// badger 的 Info 级别非常啰嗦，统一降到 Debug。
type badgerLogger struct{}

func (badgerLogger) logger() *zap.SugaredLogger {
	return log.S().With(zap.String("module", "badger"))
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger().Errorf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger().Warnf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger().Debugf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger().Debugf(format, args...)
}
