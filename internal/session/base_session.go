package session

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

// defaultSendQueueSize 为每个会话的发送队列容量。
const defaultSendQueueSize = 1024

// BaseSession 提供了 Session 接口的基础实现。
//
// 设计目标：
//   - 封装最小但完整的会话能力：ID、Context、地址信息、发送与关闭；
//   - 所有写出集中在单个发送协程，避免多协程并发写 conn 导致的行交叉；
//   - 对单个接收方的写失败只影响该会话自身，不向调用方传播。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn       net.Conn
	remoteAddr net.Addr

	// sendQueue 为待发送协议行的队列。
	//   - Send 仅负责投递；
	//   - 独立的发送协程按顺序取出并写入底层连接。
	sendQueue chan []byte

	closeOnce sync.Once
}

// 确保 BaseSession 实现了 Session 接口。
var _ Session = (*BaseSession)(nil)

// NewBaseSession 创建一个基于 net.Conn 的基础 Session 实例。
//
// 参数：
//   - parent   ：会话所属的上层上下文；若为 nil，则使用 context.Background()；
//   - id       ：会话 ID，由调用侧保证全局唯一；
//   - conn     ：底层网络连接；
//   - queueSize：发送队列容量，非正数时使用默认值。
func NewBaseSession(parent context.Context, id uint64, conn net.Conn, queueSize int) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:         id,
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		remoteAddr: conn.RemoteAddr(),
		sendQueue:  make(chan []byte, queueSize),
	}

	go s.sendLoop()

	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() uint64 {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// Send 实现 Session.Send。
//
// 广播路径要求任何单个接收方都不能阻塞整体投递，
// 因此队列已满时直接丢弃并返回 ErrSessionBusy，由调用方决定是否记录。
func (s *BaseSession) Send(line []byte) error {
	select {
	case <-s.ctx.Done():
		return merr.WrapErrSessionClosed(s.id)
	default:
	}

	select {
	case s.sendQueue <- line:
		return nil
	case <-s.ctx.Done():
		return merr.WrapErrSessionClosed(s.id)
	default:
		return merr.WrapErrSessionBusy(s.id)
	}
}

// Close 实现 Session.Close。
func (s *BaseSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// 先取消上下文，再关闭连接，让发送协程和读取方都能尽快退出。
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 按顺序取出待发送行并完整写入连接，显式处理短写；
//   - 写失败视为该会话的传输故障，关闭会话；错误不会传播到广播方。
func (s *BaseSession) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case line := <-s.sendQueue:
			if err := s.writeAll(line); err != nil {
				log.RatedWarn(1.0, "session write failed, closing",
					log.FieldSession(s.id),
					zap.String("remote", s.remoteAddr.String()),
					zap.Error(err))
				_ = s.Close()
				return
			}
		}
	}
}

// writeAll 将一条完整协议行写入底层连接，处理短写。
func (s *BaseSession) writeAll(line []byte) error {
	written := 0
	for written < len(line) {
		n, err := s.conn.Write(line[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}
