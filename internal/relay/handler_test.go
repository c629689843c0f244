package relay

import (
	"bufio"
	"context"
	"encoding/base64"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/wsted-relay-go/internal/filestore"
	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

type RelaySuite struct {
	suite.Suite

	files *filestore.Store
	srv   *Server
	addr  string
}

func (s *RelaySuite) SetupSuite() {
	logger, p, err := log.InitTestLogger(s.T(), &log.Config{Level: "info"})
	s.Require().NoError(err)
	log.ReplaceGlobals(logger, p)
}

func (s *RelaySuite) SetupTest() {
	files, err := filestore.Open(filestore.Options{InMemory: true})
	s.Require().NoError(err)
	s.files = files

	srv, err := NewServer(Config{ListenAddr: "127.0.0.1:0"}, files)
	s.Require().NoError(err)
	s.Require().NoError(srv.Listen())
	s.srv = srv
	s.addr = srv.Addr().String()

	go func() {
		_ = srv.Serve()
	}()
}

func (s *RelaySuite) TearDownTest() {
	s.srv.Close()
	s.NoError(s.files.Close())
}

// testClient 是测试用的最小协议客户端。
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (s *RelaySuite) dial() *testClient {
	conn, err := net.Dial("tcp", s.addr)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = conn.Close() })
	return &testClient{
		t:    s.T(),
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

// recv 读取下一条协议行（不含换行符）。
func (c *testClient) recv() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *testClient) expect(want string) {
	c.t.Helper()
	require.Equal(c.t, want, c.recv())
}

// joinNew 通过 `/join new:<user>` 建房并消费入房回执，返回分配的房间 ID。
func (c *testClient) joinNew(user string) string {
	c.t.Helper()
	c.send("/join new:" + user)

	line := c.recv()
	require.True(c.t, strings.HasPrefix(line, "/roomid "), "got %q", line)
	roomID := strings.TrimPrefix(line, "/roomid ")
	roomID = roomID[:strings.IndexByte(roomID, ':')]
	require.Len(c.t, roomID, 10)

	c.expect("/userid " + roomID + ":" + user)
	c.expect("Server: " + user + " has joined.")
	c.expect("/users " + roomID + ":" + user)
	c.expect("/files " + roomID + ":")
	return roomID
}

func (s *RelaySuite) TestJoinAndUsernameCollision() {
	alice := s.dial()
	roomID := alice.joinNew("bob")

	// 同名加入者拿到追加 "-1" 的昵称。
	second := s.dial()
	second.send("/join " + roomID + ":bob")
	second.expect("/userid " + roomID + ":bob-1")
	second.expect("Server: bob-1 has joined.")
	second.expect("/users " + roomID + ":bob,bob-1")
	second.expect("/files " + roomID + ":")

	// 老成员看到同样的加入事件。
	alice.expect("Server: bob-1 has joined.")
	alice.expect("/users " + roomID + ":bob,bob-1")
	alice.expect("/files " + roomID + ":")
}

func (s *RelaySuite) TestJoinAbsentRoomCreates() {
	// join 一个不存在的房间 ID 时按该 ID 建一个空房间。
	c := s.dial()
	c.send("/join XYZ123ABCD:carol")
	c.expect("/userid XYZ123ABCD:carol")
	c.expect("Server: carol has joined.")
	c.expect("/users XYZ123ABCD:carol")
	c.expect("/files XYZ123ABCD:")
}

func (s *RelaySuite) TestRejoinAfterTeardownGetsFreshRoom() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	payload := base64.StdEncoding.EncodeToString([]byte("data"))
	alice.send("/sendfile 'a.txt' " + roomID + ":" + payload)
	alice.recv()
	alice.recv()

	// 最后一名成员离开，房间连同文件一起删除。
	s.NoError(alice.conn.Close())
	s.Require().Eventually(func() bool {
		s.srv.mu.Lock()
		defer s.srv.mu.Unlock()
		return s.srv.rooms.Count() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// 用同一 ID 重新 join，得到的是全新的空房间。
	carol := s.dial()
	carol.send("/join " + roomID + ":carol")
	carol.expect("/userid " + roomID + ":carol")
	carol.expect("Server: carol has joined.")
	carol.expect("/users " + roomID + ":carol")
	carol.expect("/files " + roomID + ":")
}

func (s *RelaySuite) TestJoinClearsLeftoverStorage() {
	// 模拟上一次生命周期删除失败留下的存储残留。
	_, err := s.files.Put("XYZ123ABCD", "a.txt", []byte("stale"))
	s.Require().NoError(err)

	c := s.dial()
	c.send("/join XYZ123ABCD:carol")
	for i := 0; i < 4; i++ {
		c.recv()
	}

	// 残留清空后，同名上传不会触发冲突消解。
	payload := base64.StdEncoding.EncodeToString([]byte("fresh"))
	c.send("/sendfile 'a.txt' XYZ123ABCD:" + payload)
	c.expect("Server: carol has uploaded file 'a.txt'.")
	c.expect("/files XYZ123ABCD:a.txt")
}

func (s *RelaySuite) TestMessageBroadcast() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	bob := s.dial()
	bob.send("/join " + roomID + ":bob")
	bob.expect("/userid " + roomID + ":bob")
	bob.expect("Server: bob has joined.")
	bob.expect("/users " + roomID + ":alice,bob")
	bob.expect("/files " + roomID + ":")
	alice.expect("Server: bob has joined.")
	alice.expect("/users " + roomID + ":alice,bob")
	alice.expect("/files " + roomID + ":")

	bob.send("/msg " + roomID + ":hello: world")
	alice.expect("bob:hello: world")
	bob.expect("bob:hello: world")
}

// deadSession 模拟一个投递必然失败的成员会话。
type deadSession struct {
	id uint64
}

func (d *deadSession) ID() uint64               { return d.id }
func (d *deadSession) Context() context.Context { return context.Background() }
func (d *deadSession) RemoteAddr() net.Addr     { return &net.TCPAddr{} }
func (d *deadSession) Send(line []byte) error   { return merr.WrapErrSessionBusy(d.id) }
func (d *deadSession) Close() error             { return nil }

func (s *RelaySuite) TestBroadcastFailureIsolated() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	dead := &deadSession{id: 1 << 40}
	s.srv.mu.Lock()
	s.srv.sessions.Register(dead)
	_, err := s.srv.rooms.AddMember(roomID, dead.ID(), "ghost")
	s.srv.mu.Unlock()
	s.Require().NoError(err)

	// 对单个成员的投递失败不影响其余成员收到广播，
	// 也不影响发送方后续命令的处理。
	alice.send("/msg " + roomID + ":hello")
	alice.expect("alice:hello")
	alice.send("/msg " + roomID + ":still here")
	alice.expect("alice:still here")
}

func (s *RelaySuite) TestMessageBeforeJoinDropped() {
	c := s.dial()
	c.send("/msg whatever:hi")
	c.send("not a protocol line at all")

	// 两条都被静默丢弃，连接保持可用。
	c.joinNew("dave")
}

func (s *RelaySuite) TestSendFileAndGetFile() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	bob := s.dial()
	bob.send("/join " + roomID + ":bob")
	for i := 0; i < 4; i++ {
		bob.recv()
	}
	for i := 0; i < 3; i++ {
		alice.recv()
	}

	payload := base64.StdEncoding.EncodeToString([]byte("hello file"))
	alice.send("/sendfile 'notes.txt' " + roomID + ":" + payload)

	for _, c := range []*testClient{alice, bob} {
		c.expect("Server: alice has uploaded file 'notes.txt'.")
		c.expect("/files " + roomID + ":notes.txt")
	}

	bob.send("/getfile 'notes.txt' " + roomID + ":.")
	bob.expect("/sendfile 'notes.txt' " + roomID + ":" + payload)
	for _, c := range []*testClient{alice, bob} {
		c.expect("Server: bob has downloaded file 'notes.txt'.")
	}
}

func (s *RelaySuite) TestSendFileNameCollision() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	payload := base64.StdEncoding.EncodeToString([]byte("v1"))
	alice.send("/sendfile 'photo.png' " + roomID + ":" + payload)
	alice.expect("Server: alice has uploaded file 'photo.png'.")
	alice.expect("/files " + roomID + ":photo.png")

	alice.send("/sendfile 'photo.png' " + roomID + ":" + payload)
	alice.expect("Server: alice has uploaded file 'photo-1.png'.")
	alice.expect("/files " + roomID + ":photo.png/photo-1.png")
}

func (s *RelaySuite) TestGetFileMissSilent() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	alice.send("/getfile 'nope.txt' " + roomID + ":.")
	alice.send("/msg " + roomID + ":still alive")
	alice.expect("alice:still alive")
}

func (s *RelaySuite) TestEmptyFileDropped() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	alice.send("/sendfile 'empty.bin' " + roomID + ":")
	alice.send("/msg " + roomID + ":ping")
	alice.expect("alice:ping")

	names, err := s.files.Names(roomID)
	s.NoError(err)
	s.Empty(names)
}

func (s *RelaySuite) TestLeaveBroadcastAndRoomTeardown() {
	alice := s.dial()
	roomID := alice.joinNew("alice")

	bob := s.dial()
	bob.send("/join " + roomID + ":bob")
	for i := 0; i < 4; i++ {
		bob.recv()
	}
	for i := 0; i < 3; i++ {
		alice.recv()
	}

	payload := base64.StdEncoding.EncodeToString([]byte("data"))
	alice.send("/sendfile 'a.txt' " + roomID + ":" + payload)
	for _, c := range []*testClient{alice, bob} {
		c.recv()
		c.recv()
	}

	s.NoError(bob.conn.Close())
	alice.expect("Server: bob has left.")
	alice.expect("/users " + roomID + ":alice")

	// 最后一名成员离开后房间与文件同步删除。
	s.NoError(alice.conn.Close())
	s.Require().Eventually(func() bool {
		s.srv.mu.Lock()
		defer s.srv.mu.Unlock()
		return s.srv.rooms.Count() == 0
	}, 5*time.Second, 10*time.Millisecond)

	names, err := s.files.Names(roomID)
	s.NoError(err)
	s.Empty(names)
}

func TestRelay(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}
