package relay

import (
	"fmt"

	"github.com/lk2023060901/wsted-relay-go/internal/protocol"
)

// handlerFunc 处理一条已解析的命令。
// 返回的错误只用于日志与计数，协议上对客户端保持静默。
type handlerFunc func(cc *clientConn, cmd protocol.Command) error

// router 将命令类型分发到对应的处理函数。
type router struct {
	routes map[protocol.Kind]handlerFunc
}

func newRouter(s *Server) *router {
	r := &router{
		routes: make(map[protocol.Kind]handlerFunc),
	}
	r.register(protocol.KindJoin, s.handleJoin)
	r.register(protocol.KindMessage, s.handleMessage)
	r.register(protocol.KindSendFile, s.handleSendFile)
	r.register(protocol.KindGetFile, s.handleGetFile)
	return r
}

// register 登记一种命令的处理函数，重复登记视为编码错误。
func (r *router) register(kind protocol.Kind, fn handlerFunc) {
	if _, ok := r.routes[kind]; ok {
		panic(fmt.Sprintf("duplicated route for command kind %d", kind))
	}
	r.routes[kind] = fn
}

// dispatch 查找并执行命令对应的处理函数。
func (r *router) dispatch(cc *clientConn, cmd protocol.Command) error {
	fn, ok := r.routes[cmd.Kind()]
	if !ok {
		return fmt.Errorf("no route for command kind %d", cmd.Kind())
	}
	return fn(cc, cmd)
}
