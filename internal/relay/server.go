package relay

import (
	"context"
	"net"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/wsted-relay-go/internal/filestore"
	"github.com/lk2023060901/wsted-relay-go/internal/protocol"
	"github.com/lk2023060901/wsted-relay-go/internal/room"
	"github.com/lk2023060901/wsted-relay-go/internal/session"
	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/metrics"
	"github.com/lk2023060901/wsted-relay-go/pkg/util/conc"
)

const (
	// DefaultListenAddr 为默认监听地址。
	DefaultListenAddr = ":8044"

	// defaultPoolSize 为连接处理池的默认容量，即同时可服务的连接数上限。
	defaultPoolSize = 4096
)

// Config 为中继服务的启动配置。
type Config struct {
	// ListenAddr 为 TCP 监听地址，空串时使用 DefaultListenAddr。
	ListenAddr string `mapstructure:"listen-addr"`

	// SendQueueSize 为每个会话的发送队列容量，非正数时使用会话层默认值。
	SendQueueSize int `mapstructure:"send-queue-size"`

	// MaxLineBytes 为单条协议行的大小上限，非正数时使用协议层默认值。
	MaxLineBytes int64 `mapstructure:"max-line-bytes"`

	// PoolSize 为连接处理池容量，非正数时使用 defaultPoolSize。
	PoolSize int `mapstructure:"pool-size"`
}

// Server 为多房间消息与文件中继服务。
//
// 并发模型：
//   - 每条连接一个读取协程（由 ants 池托管）加一个会话内的发送协程；
//   - mu 串行化所有房间状态的"读取-修改-广播"序列，
//     保证任何一次广播看到的成员表、文件表都是一致的快照；
//   - 广播只向会话队列投递，不等待网络写出，持锁期间不会被慢客户端拖住。
type Server struct {
	cfg Config

	listener net.Listener
	sessions *session.Manager
	files    *filestore.Store
	pool     *conc.Pool
	router   *router

	// mu 保护 rooms 的全部读写。
	mu    sync.Mutex
	rooms *room.Store

	nextSessionID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewServer 创建中继服务实例。files 的生命周期由调用方管理。
func NewServer(cfg Config, files *filestore.Store) (*Server, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	pool, err := conc.NewPool(poolSize, conc.WithConcealPanic(true))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		sessions: session.NewManager(),
		files:    files,
		pool:     pool,
		rooms:    room.NewStore(),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.router = newRouter(s)
	return s, nil
}

// Listen 绑定监听地址。绑定失败时返回错误，由上层决定是否退出进程。
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Info("relay listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 返回实际监听地址，必须在 Listen 成功之后调用。
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve 运行接入循环，直到 Close 被调用或监听器发生不可恢复的错误。
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return nil
			default:
			}
			return err
		}
		s.startSession(conn)
	}
}

// startSession 为新连接建立会话并提交读取任务到连接池。
func (s *Server) startSession(conn net.Conn) {
	id := s.nextSessionID.Inc()
	sess := session.NewBaseSession(s.ctx, id, conn, s.cfg.SendQueueSize)
	s.sessions.Register(sess)
	metrics.ConnectionsOpen.Inc()

	log.Info("session opened",
		log.FieldSession(id),
		zap.String("remote", sess.RemoteAddr().String()))

	cc := newClientConn(s, sess, conn)
	s.wg.Add(1)
	if err := s.pool.Submit(func() {
		defer s.wg.Done()
		cc.run()
	}); err != nil {
		// 池满即达到连接数上限，拒绝这条连接。
		s.wg.Done()
		log.Warn("connection pool exhausted, rejecting connection",
			log.FieldSession(id),
			zap.String("remote", sess.RemoteAddr().String()),
			zap.Error(err))
		s.finishSession(cc)
	}
}

// finishSession 完成一条连接的收尾：退房、注销、关闭。
func (s *Server) finishSession(cc *clientConn) {
	s.mu.Lock()
	s.leaveRoomLocked(cc)
	s.mu.Unlock()

	s.sessions.Unregister(cc.sess.ID())
	_ = cc.sess.Close()
	metrics.ConnectionsOpen.Dec()

	log.Info("session closed", log.FieldSession(cc.sess.ID()))
}

// Close 停止接入新连接并关闭全部会话。
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.sessions.Range(func(sess session.Session) bool {
			_ = sess.Close()
			return true
		})
		s.wg.Wait()
		s.pool.Release()
		log.Info("relay stopped")
	})
}

// broadcastLocked 将一条协议行投递给房间的全部成员。
// 单个接收方的投递失败只记录与计数，不影响其余成员。
// 调用方必须持有 s.mu。
func (s *Server) broadcastLocked(r *room.Room, line []byte) {
	for _, id := range r.MemberIDs() {
		s.sendToLocked(r, id, line)
	}
}

// sendToLocked 将一条协议行投递给单个成员，调用方必须持有 s.mu。
func (s *Server) sendToLocked(r *room.Room, sessionID uint64, line []byte) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	if err := sess.Send(line); err != nil {
		metrics.BroadcastSendFailures.Inc()
		log.RatedWarn(1.0, "broadcast delivery failed",
			log.FieldRoom(r.ID()),
			log.FieldSession(sessionID),
			zap.Error(err))
	}
}

// leaveRoomLocked 将会话移出其所在房间并广播离开事件。
// 房间因此变空时同步删除房间与其全部文件。
// 调用方必须持有 s.mu。
func (s *Server) leaveRoomLocked(cc *clientConn) {
	r, name, ok := s.rooms.RemoveMember(cc.sess.ID())
	if !ok {
		return
	}
	cc.roomID = ""
	cc.username = ""

	if r.Empty() {
		s.rooms.Delete(r.ID())
		metrics.RoomsLive.Dec()
		if err := s.files.DropRoom(r.ID()); err != nil {
			log.Warn("failed to drop room files",
				log.FieldRoom(r.ID()),
				zap.Error(err))
		}
		log.Info("room deleted", log.FieldRoom(r.ID()))
		return
	}

	s.broadcastLocked(r, protocol.NoticeLine(name+" has left."))
	s.broadcastLocked(r, protocol.UsersLine(r.ID(), r.Usernames()))
}
