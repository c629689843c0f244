package protocol

import (
	"strings"

	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

// Parse 将一行原始输入（不含换行符）解析为类型化命令。
//
// 依次尝试两种文法：
//  1. /<command> <roomId>:<data>
//  2. /<command> '<filename>' <roomId>:<data>
//
// 两种文法都不匹配、或命令字不被识别时，返回 ErrLineUnparseable；
// 调用方应记录日志并丢弃该行，连接保持打开。
func Parse(line string) (Command, error) {
	if !strings.HasPrefix(line, "/") {
		return nil, merr.WrapErrLineUnparseable(line)
	}

	sp := strings.IndexByte(line, ' ')
	if sp < 2 {
		return nil, merr.WrapErrLineUnparseable(line)
	}

	verb := line[1:sp]
	if !isLowerAlpha(verb) {
		return nil, merr.WrapErrLineUnparseable(line)
	}

	rest := line[sp+1:]

	if strings.HasPrefix(rest, "'") {
		return parseFileForm(line, verb, rest)
	}
	return parseMessageForm(line, verb, rest)
}

// parseMessageForm 解析 `<roomId>:<data>` 形式的命令尾部。
func parseMessageForm(line, verb, rest string) (Command, error) {
	colon := strings.IndexByte(rest, ':')
	if colon <= 0 {
		return nil, merr.WrapErrLineUnparseable(line)
	}

	roomID := rest[:colon]
	if !isAlphanumeric(roomID) {
		return nil, merr.WrapErrLineUnparseable(line)
	}
	data := rest[colon+1:]

	switch verb {
	case verbJoin:
		return Join{RoomID: roomID, Username: data}, nil
	case verbMessage:
		return Message{RoomID: roomID, Text: data}, nil
	default:
		return nil, merr.WrapErrLineUnparseable(line, "unknown command %q", verb)
	}
}

// parseFileForm 解析 `'<filename>' <roomId>:<data>` 形式的命令尾部。
//
// 文件名与 data 都可能含有单引号，因此 `' ` 分隔符不唯一。
// 从最右侧的 `' ` 开始向左逐个尝试，取第一个尾部能匹配
// `<roomId>:<data>` 的切分，让文件名尽可能长。
func parseFileForm(line, verb, rest string) (Command, error) {
	for qe := strings.LastIndex(rest, "' "); qe >= 1; qe = strings.LastIndex(rest[:qe], "' ") {
		tail := rest[qe+2:]

		colon := strings.IndexByte(tail, ':')
		if colon <= 0 || !isAlphanumeric(tail[:colon]) {
			continue
		}

		filename := rest[1:qe]
		roomID := tail[:colon]
		data := tail[colon+1:]

		switch verb {
		case verbSendFile:
			return SendFile{RoomID: roomID, Filename: filename, Payload: data}, nil
		case verbGetFile:
			return GetFile{RoomID: roomID, Filename: filename}, nil
		default:
			return nil, merr.WrapErrLineUnparseable(line, "unknown command %q", verb)
		}
	}
	return nil, merr.WrapErrLineUnparseable(line)
}

func isLowerAlpha(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

// 以下为服务器到客户端的行渲染。
// 所有行都以 '\n' 结尾，可直接写入连接。

// RoomIDLine 渲染新房间分配回执 `/roomid <roomId>:<username>`。
func RoomIDLine(roomID, username string) []byte {
	return []byte("/roomid " + roomID + ":" + username + "\n")
}

// UserIDLine 渲染用户名确认回执 `/userid <roomId>:<username>`。
func UserIDLine(roomID, username string) []byte {
	return []byte("/userid " + roomID + ":" + username + "\n")
}

// UsersLine 渲染完整用户列表 `/users <roomId>:<a,b,c>`。
func UsersLine(roomID string, users []string) []byte {
	return []byte("/users " + roomID + ":" + strings.Join(users, ",") + "\n")
}

// FilesLine 渲染完整文件列表 `/files <roomId>:<a/b/c>`。
func FilesLine(roomID string, files []string) []byte {
	return []byte("/files " + roomID + ":" + strings.Join(files, "/") + "\n")
}

// FileLine 渲染文件下发行 `/sendfile '<filename>' <roomId>:<base64>`。
// 文件名先经 SanitizeFilename 处理，避免嵌入引号造成歧义。
func FileLine(roomID, filename, payload string) []byte {
	return []byte("/sendfile '" + SanitizeFilename(filename) + "' " + roomID + ":" + payload + "\n")
}

// ChatLine 渲染聊天广播行 `<username>:<text>`。
func ChatLine(username, text string) []byte {
	return []byte(username + ":" + text + "\n")
}

// NoticeLine 渲染系统通知行 `Server: <text>`。
func NoticeLine(text string) []byte {
	return []byte("Server: " + text + "\n")
}

// SanitizeFilename 将文件名中的单引号替换为下划线。
func SanitizeFilename(name string) string {
	return strings.ReplaceAll(name, "'", "_")
}
