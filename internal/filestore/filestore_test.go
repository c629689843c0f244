package filestore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

type FileStoreSuite struct {
	suite.Suite

	store *Store
}

func (s *FileStoreSuite) SetupSuite() {
	logger, p, err := log.InitTestLogger(s.T(), &log.Config{Level: "info"})
	s.Require().NoError(err)
	log.ReplaceGlobals(logger, p)
}

func (s *FileStoreSuite) SetupTest() {
	store, err := Open(Options{InMemory: true})
	s.Require().NoError(err)
	s.store = store
}

func (s *FileStoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func (s *FileStoreSuite) TestPutGetRoundTrip() {
	name, err := s.store.Put("r1", "a.txt", []byte("hello"))
	s.NoError(err)
	s.Equal("a.txt", name)

	data, err := s.store.Get("r1", "a.txt")
	s.NoError(err)
	s.True(bytes.Equal([]byte("hello"), data))

	names, err := s.store.Names("r1")
	s.NoError(err)
	s.Equal([]string{"a.txt"}, names)
}

func (s *FileStoreSuite) TestGetMissing() {
	_, err := s.store.Get("r1", "nope.txt")
	s.ErrorIs(err, merr.ErrFileNotFound)
}

func (s *FileStoreSuite) TestRoomsIsolated() {
	_, err := s.store.Put("r1", "a.txt", []byte("one"))
	s.NoError(err)

	_, err = s.store.Get("r2", "a.txt")
	s.ErrorIs(err, merr.ErrFileNotFound)

	names, err := s.store.Names("r2")
	s.NoError(err)
	s.Empty(names)
}

func (s *FileStoreSuite) TestNameCollisionChain() {
	name, err := s.store.Put("r1", "photo.png", []byte("1"))
	s.NoError(err)
	s.Equal("photo.png", name)

	name, err = s.store.Put("r1", "photo.png", []byte("2"))
	s.NoError(err)
	s.Equal("photo-1.png", name)

	name, err = s.store.Put("r1", "photo.png", []byte("3"))
	s.NoError(err)
	s.Equal("photo-1-1.png", name)

	names, err := s.store.Names("r1")
	s.NoError(err)
	s.Equal([]string{"photo.png", "photo-1.png", "photo-1-1.png"}, names)

	data, err := s.store.Get("r1", "photo-1.png")
	s.NoError(err)
	s.Equal([]byte("2"), data)
}

func (s *FileStoreSuite) TestNameCollisionNoExtension() {
	name, err := s.store.Put("r1", "README", []byte("1"))
	s.NoError(err)
	s.Equal("README", name)

	name, err = s.store.Put("r1", "README", []byte("2"))
	s.NoError(err)
	s.Equal("README-1", name)
}

func (s *FileStoreSuite) TestTooLargeRejected() {
	store, err := Open(Options{InMemory: true, MaxFileBytes: 8})
	s.Require().NoError(err)
	defer store.Close()

	_, err = store.Put("r1", "big.bin", bytes.Repeat([]byte("x"), 9))
	s.ErrorIs(err, merr.ErrFileTooLarge)

	names, err := store.Names("r1")
	s.NoError(err)
	s.Empty(names)
}

func (s *FileStoreSuite) TestDropRoom() {
	_, err := s.store.Put("r1", "a.txt", []byte("one"))
	s.NoError(err)
	_, err = s.store.Put("r1", "b.txt", []byte("two"))
	s.NoError(err)

	s.NoError(s.store.DropRoom("r1"))

	_, err = s.store.Get("r1", "a.txt")
	s.ErrorIs(err, merr.ErrFileNotFound)

	names, err := s.store.Names("r1")
	s.NoError(err)
	s.Empty(names)

	// 删除后同名文件重新上传不再触发冲突消解。
	name, err := s.store.Put("r1", "a.txt", []byte("again"))
	s.NoError(err)
	s.Equal("a.txt", name)
}

func TestFileStore(t *testing.T) {
	suite.Run(t, new(FileStoreSuite))
}
