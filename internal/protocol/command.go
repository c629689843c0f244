package protocol

// Kind 标识一条客户端命令的类型。
type Kind uint8

const (
	KindInvalid Kind = iota
	KindJoin
	KindMessage
	KindSendFile
	KindGetFile
)

// 协议中的命令字。
const (
	verbJoin     = "join"
	verbMessage  = "msg"
	verbSendFile = "sendfile"
	verbGetFile  = "getfile"
)

// NewRoomKeyword 为 join 命令中表示“请求新建房间”的特殊房间 ID。
const NewRoomKeyword = "new"

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return verbJoin
	case KindMessage:
		return verbMessage
	case KindSendFile:
		return verbSendFile
	case KindGetFile:
		return verbGetFile
	default:
		return "invalid"
	}
}

// Command 是一条已解析命令的统一抽象。
//
// 设计说明：
//   - 每种命令对应一个独立的结构体，解析器只产出这些具体类型；
//   - 相比用正则分组位置取值，带字段名的结构体让畸形输入的处理路径显式且可测试。
type Command interface {
	// Kind 返回命令类型。
	Kind() Kind

	// Room 返回命令中携带的房间 ID。
	Room() string
}

// Join 表示 `/join <roomId>:<username>`。
// roomId 为 NewRoomKeyword 时表示请求分配新房间。
type Join struct {
	RoomID   string
	Username string
}

// Message 表示 `/msg <roomId>:<text>`。
type Message struct {
	RoomID string
	Text   string
}

// SendFile 表示 `/sendfile '<filename>' <roomId>:<base64>`。
// Payload 为未解码的 base64 文本。
type SendFile struct {
	RoomID   string
	Filename string
	Payload  string
}

// GetFile 表示 `/getfile '<filename>' <roomId>:<data>`。
// data 部分对 getfile 无意义，解析后丢弃。
type GetFile struct {
	RoomID   string
	Filename string
}

func (c Join) Kind() Kind     { return KindJoin }
func (c Message) Kind() Kind  { return KindMessage }
func (c SendFile) Kind() Kind { return KindSendFile }
func (c GetFile) Kind() Kind  { return KindGetFile }

func (c Join) Room() string     { return c.RoomID }
func (c Message) Room() string  { return c.RoomID }
func (c SendFile) Room() string { return c.RoomID }
func (c GetFile) Room() string  { return c.RoomID }
