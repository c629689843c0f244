package relay

import (
	"encoding/base64"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/lk2023060901/wsted-relay-go/internal/protocol"
	"github.com/lk2023060901/wsted-relay-go/internal/session"
	"github.com/lk2023060901/wsted-relay-go/pkg/log"
	"github.com/lk2023060901/wsted-relay-go/pkg/metrics"
	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

// clientConn 是一条连接的命令消费端。
//
// roomID 与 username 记录该会话当前的入房状态，
// 只在持有 Server.mu 的处理函数内读写。
type clientConn struct {
	srv    *Server
	sess   session.Session
	framer *protocol.LineFramer

	roomID   string
	username string
}

func newClientConn(s *Server, sess session.Session, conn net.Conn) *clientConn {
	return &clientConn{
		srv:    s,
		sess:   sess,
		framer: protocol.NewLineFramer(conn, s.cfg.MaxLineBytes),
	}
}

// run 串行消费该连接上的命令行，连接断开或服务停止后做收尾。
//
// 静默丢弃策略：无法解析的行、语义上不合法的命令都不会得到任何回应，
// 只记日志与计数，连接保持可用。
func (cc *clientConn) run() {
	defer cc.srv.finishSession(cc)

	for {
		select {
		case <-cc.sess.Context().Done():
			return
		default:
		}

		line, err := cc.framer.ReadLine()
		if err != nil {
			if errors.Is(err, merr.ErrLineTooLong) {
				metrics.LinesUnparseable.Inc()
				log.Warn("overlong line discarded",
					log.FieldSession(cc.sess.ID()),
					zap.Error(err))
				continue
			}
			if !errors.Is(err, io.EOF) {
				log.RatedInfo(1.0, "connection read failed",
					log.FieldSession(cc.sess.ID()),
					zap.Error(err))
			}
			return
		}

		cmd, err := protocol.Parse(line)
		if err != nil {
			metrics.LinesUnparseable.Inc()
			log.RatedDebug(10.0, "unparseable line dropped",
				log.FieldSession(cc.sess.ID()),
				zap.Error(err))
			continue
		}

		metrics.CommandsProcessed.WithLabelValues(cmd.Kind().String()).Inc()
		if err := cc.srv.router.dispatch(cc, cmd); err != nil {
			log.RatedDebug(10.0, "command dropped",
				log.FieldSession(cc.sess.ID()),
				zap.String("command", cmd.Kind().String()),
				zap.Error(err))
		}
	}
}

// requireJoinedRoom 校验会话已入房且命令指向所在房间。
// 只在持锁的处理函数内调用。
func (cc *clientConn) requireJoinedRoom(cmd protocol.Command) error {
	if cc.roomID == "" {
		return merr.WrapErrSessionNotJoined(cc.sess.ID(), cmd.Kind().String())
	}
	if cmd.Room() != cc.roomID {
		return merr.WrapErrRoomNotFound(cmd.Room(), "command targets a room the session is not in")
	}
	return nil
}

// handleJoin 处理 `/join <roomId>:<username>`。
//
// 流程：
//   - roomId 为 "new" 时分配随机 ID 建房，并先单发 /roomid 告知分配结果；
//   - 指定的房间不存在时按该 ID 建一个空房间（房间随最后一名成员离开
//     而删除，重新 join 同一 ID 得到的是全新空房间）；
//   - 已入房的会话重复 join 静默丢弃；
//   - 入房成功后按序：单发 /userid，广播加入通告，广播 /users，广播 /files。
func (s *Server) handleJoin(cc *clientConn, cmd protocol.Command) error {
	join := cmd.(protocol.Join)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cc.roomID != "" {
		return merr.WrapErrParameterInvalidMsg("session %d already joined room %s", cc.sess.ID(), cc.roomID)
	}

	roomID := join.RoomID
	created := false
	if roomID == protocol.NewRoomKeyword {
		r := s.rooms.CreateWithFreshID()
		roomID = r.ID()
		created = true
		// 分配结果必须先于任何房间事件到达请求方。
		s.sendToLocked(r, cc.sess.ID(), protocol.RoomIDLine(roomID, join.Username))
	} else if _, wasNew := s.rooms.GetOrCreate(roomID); wasNew {
		created = true
	}
	if created {
		metrics.RoomsLive.Inc()
		log.Info("room created",
			log.FieldRoom(roomID),
			log.FieldSession(cc.sess.ID()))
		// 同一 ID 上一次生命周期删除失败时可能留有存储残留，建房时清掉。
		if err := s.files.DropRoom(roomID); err != nil {
			log.Warn("failed to clear leftover room files",
				log.FieldRoom(roomID),
				zap.Error(err))
		}
	}

	name, err := s.rooms.AddMember(roomID, cc.sess.ID(), join.Username)
	if err != nil {
		return err
	}
	cc.roomID = roomID
	cc.username = name

	r, _ := s.rooms.Get(roomID)
	s.sendToLocked(r, cc.sess.ID(), protocol.UserIDLine(roomID, name))
	s.broadcastLocked(r, protocol.NoticeLine(name+" has joined."))
	s.broadcastLocked(r, protocol.UsersLine(roomID, r.Usernames()))
	s.broadcastLocked(r, protocol.FilesLine(roomID, r.Files()))

	log.Info("member joined",
		log.FieldRoom(roomID),
		log.FieldSession(cc.sess.ID()),
		zap.String("username", name))
	return nil
}

// handleMessage 处理 `/msg <roomId>:<text>`，向全房间广播聊天行。
func (s *Server) handleMessage(cc *clientConn, cmd protocol.Command) error {
	msg := cmd.(protocol.Message)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cc.requireJoinedRoom(cmd); err != nil {
		return err
	}

	r, ok := s.rooms.Get(cc.roomID)
	if !ok {
		return merr.WrapErrRoomNotFound(cc.roomID)
	}
	s.broadcastLocked(r, protocol.ChatLine(cc.username, msg.Text))
	return nil
}

// handleSendFile 处理 `/sendfile '<filename>' <roomId>:<base64>`。
//
// 流程：解码并校验载荷，写入文件仓库（冲突消解在仓库内完成），
// 然后广播上传通告与最新的 /files 列表。
func (s *Server) handleSendFile(cc *clientConn, cmd protocol.Command) error {
	sf := cmd.(protocol.SendFile)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cc.requireJoinedRoom(cmd); err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(sf.Payload)
	if err != nil {
		return merr.WrapErrBadPayload(sf.Filename, err)
	}
	if len(data) == 0 {
		return merr.WrapErrFileEmpty(sf.Filename)
	}

	name, err := s.files.Put(cc.roomID, protocol.SanitizeFilename(sf.Filename), data)
	if err != nil {
		return err
	}

	r, ok := s.rooms.Get(cc.roomID)
	if !ok {
		return merr.WrapErrRoomNotFound(cc.roomID)
	}
	r.AddFile(name)
	metrics.FilesStored.Inc()
	metrics.FileBytesStored.Add(float64(len(data)))

	s.broadcastLocked(r, protocol.NoticeLine(cc.username+" has uploaded file '"+name+"'."))
	s.broadcastLocked(r, protocol.FilesLine(r.ID(), r.Files()))

	log.Info("file stored",
		log.FieldRoom(cc.roomID),
		log.FieldSession(cc.sess.ID()),
		zap.String("filename", name),
		zap.Int("bytes", len(data)))
	return nil
}

// handleGetFile 处理 `/getfile '<filename>' <roomId>:<data>`。
//
// 命中时将文件以 /sendfile 行单发给请求方，并向全房间广播下载通告；
// 未命中时静默，只计数与记日志。
func (s *Server) handleGetFile(cc *clientConn, cmd protocol.Command) error {
	gf := cmd.(protocol.GetFile)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := cc.requireJoinedRoom(cmd); err != nil {
		return err
	}

	data, err := s.files.Get(cc.roomID, gf.Filename)
	if err != nil {
		if errors.Is(err, merr.ErrFileNotFound) {
			metrics.FileFetchMisses.Inc()
			log.Info("file fetch miss",
				log.FieldRoom(cc.roomID),
				log.FieldSession(cc.sess.ID()),
				zap.String("filename", gf.Filename))
			return nil
		}
		return err
	}

	r, ok := s.rooms.Get(cc.roomID)
	if !ok {
		return merr.WrapErrRoomNotFound(cc.roomID)
	}

	payload := base64.StdEncoding.EncodeToString(data)
	s.sendToLocked(r, cc.sess.ID(), protocol.FileLine(r.ID(), gf.Filename, payload))
	s.broadcastLocked(r, protocol.NoticeLine(cc.username+" has downloaded file '"+gf.Filename+"'."))
	return nil
}
