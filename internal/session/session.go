package session

import (
	"context"
	"net"
)

// Session 抽象了一条客户端连接。
//
// 约定：
//   - 每个 Session 对应一条底层 TCP 连接；
//   - Session ID 使用 64 位无符号整型，由接入层在连接建立时分配；
//   - 房间成员关系以 Session ID 为键建立，不直接持有连接对象。
type Session interface {
	// ID 返回该会话的全局唯一标识。
	ID() uint64

	// Context 返回与该会话关联的上下文。
	// 会话关闭时应触发 Context.Done()。
	Context() context.Context

	// RemoteAddr 返回远端地址，主要用于日志记录。
	RemoteAddr() net.Addr

	// Send 将一条完整的协议行投递到该会话的发送队列。
	//
	// 行为：
	//   - 仅入队，不等待写出；独立的发送协程负责按顺序写入底层连接；
	//   - 会话已关闭时返回 ErrSessionClosed；
	//   - 队列已满时丢弃本条消息并返回 ErrSessionBusy（尽力而为，不重试）。
	Send(line []byte) error

	// Close 主动关闭该会话。多次调用是幂等的。
	Close() error
}
