package protocol

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

type CodecSuite struct {
	suite.Suite
}

func (s *CodecSuite) TestParseJoin() {
	cmd, err := Parse("/join ABCDEFGHIJ:alice")
	s.NoError(err)
	s.Equal(Join{RoomID: "ABCDEFGHIJ", Username: "alice"}, cmd)
	s.Equal(KindJoin, cmd.Kind())
	s.Equal("ABCDEFGHIJ", cmd.Room())
}

func (s *CodecSuite) TestParseJoinNewRoom() {
	cmd, err := Parse("/join new:bob")
	s.NoError(err)
	s.Equal(Join{RoomID: NewRoomKeyword, Username: "bob"}, cmd)
}

func (s *CodecSuite) TestParseMessage() {
	cmd, err := Parse("/msg room1:hello there: colons ok")
	s.NoError(err)
	s.Equal(Message{RoomID: "room1", Text: "hello there: colons ok"}, cmd)
}

func (s *CodecSuite) TestParseMessageEmptyData() {
	cmd, err := Parse("/msg room1:")
	s.NoError(err)
	s.Equal(Message{RoomID: "room1", Text: ""}, cmd)
}

func (s *CodecSuite) TestParseSendFile() {
	cmd, err := Parse("/sendfile 'a.txt' ABCDEFGHIJ:aGk=")
	s.NoError(err)
	s.Equal(SendFile{RoomID: "ABCDEFGHIJ", Filename: "a.txt", Payload: "aGk="}, cmd)
}

func (s *CodecSuite) TestParseSendFileSpacesInName() {
	cmd, err := Parse("/sendfile 'my report (final).pdf' r1:QUJD")
	s.NoError(err)
	s.Equal(SendFile{RoomID: "r1", Filename: "my report (final).pdf", Payload: "QUJD"}, cmd)
}

func (s *CodecSuite) TestParseGetFile() {
	cmd, err := Parse("/getfile 'a.txt' ABCDEFGHIJ:.")
	s.NoError(err)
	s.Equal(GetFile{RoomID: "ABCDEFGHIJ", Filename: "a.txt"}, cmd)
}

func (s *CodecSuite) TestParseGetFileQuoteInData() {
	// data 部分可以含有 `' `，不能被误认为文件名结束符。
	cmd, err := Parse("/getfile 'a.txt' R1:x' y")
	s.NoError(err)
	s.Equal(GetFile{RoomID: "R1", Filename: "a.txt"}, cmd)
}

func (s *CodecSuite) TestParseSendFileQuoteInName() {
	// 文件名里的 `' ` 同样不终止文件名，取最长可行切分。
	cmd, err := Parse("/sendfile 'a' b.txt' r1:QUJD")
	s.NoError(err)
	s.Equal(SendFile{RoomID: "r1", Filename: "a' b.txt", Payload: "QUJD"}, cmd)
}

func (s *CodecSuite) TestParseRejects() {
	cases := []string{
		"",
		"hello",
		"/",
		"/join",
		"/join :alice",
		"/join room-1:alice",  // 房间 ID 只允许字母和数字
		"/join two words:bob", // 房间 ID 不允许空格
		"/msg room1",
		"/JOIN room1:alice",
		"/frobnicate room1:data",        // 未识别的命令字
		"/sendfile 'a.txt' room1",       // 缺少冒号
		"/sendfile 'a.txt room1:data",   // 引号未闭合
		"/getfile 'a.txt' ro om:data",   // 房间 ID 含空格
		"/sendfile 'a.txt' room_1:data", // 房间 ID 含下划线
	}
	for _, line := range cases {
		cmd, err := Parse(line)
		s.ErrorIsf(err, merr.ErrLineUnparseable, "line=%q", line)
		s.Nilf(cmd, "line=%q", line)
	}
}

func (s *CodecSuite) TestRenderLines() {
	s.Equal("/roomid ABCDEFGHIJ:alice\n", string(RoomIDLine("ABCDEFGHIJ", "alice")))
	s.Equal("/userid ABCDEFGHIJ:alice-1\n", string(UserIDLine("ABCDEFGHIJ", "alice-1")))
	s.Equal("/users r1:bob,bob-1\n", string(UsersLine("r1", []string{"bob", "bob-1"})))
	s.Equal("/files r1:a.txt/b.txt\n", string(FilesLine("r1", []string{"a.txt", "b.txt"})))
	s.Equal("/files r1:\n", string(FilesLine("r1", nil)))
	s.Equal("/sendfile 'a.txt' r1:aGk=\n", string(FileLine("r1", "a.txt", "aGk=")))
	s.Equal("bob:hi all\n", string(ChatLine("bob", "hi all")))
	s.Equal("Server: bob has joined.\n", string(NoticeLine("bob has joined.")))
}

func (s *CodecSuite) TestRenderSanitizesQuotes() {
	s.Equal("/sendfile 'it_s here.txt' r1:QUJD\n", string(FileLine("r1", "it's here.txt", "QUJD")))
}

func (s *CodecSuite) TestRenderedFileLineRoundTrip() {
	line := string(FileLine("ABCDEFGHIJ", "weird 'name'.tar.gz", "aGVsbG8="))
	cmd, err := Parse(strings.TrimSuffix(line, "\n"))
	s.NoError(err)
	s.Equal(SendFile{
		RoomID:   "ABCDEFGHIJ",
		Filename: "weird _name_.tar.gz",
		Payload:  "aGVsbG8=",
	}, cmd)
}

func TestCodec(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func TestLineFramer(t *testing.T) {
	input := "first\nsecond line\r\n/msg r1:hi\npartial"
	f := NewLineFramer(strings.NewReader(input), 0)

	line, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "first", line)

	line, err = f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "second line", line)

	line, err = f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "/msg r1:hi", line)

	// 末尾的半行被丢弃。
	_, err = f.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestLineFramerLongLineSpansBuffers(t *testing.T) {
	long := strings.Repeat("x", readerBufferSize*3+17)
	f := NewLineFramer(strings.NewReader(long+"\nnext\n"), 0)

	line, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, long, line)

	line, err = f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "next", line)
}

func TestLineFramerOverlongLineDiscarded(t *testing.T) {
	long := strings.Repeat("y", 2048)
	f := NewLineFramer(strings.NewReader(long+"\n/msg r1:after\n"), 1024)

	_, err := f.ReadLine()
	require.ErrorIs(t, err, merr.ErrLineTooLong)

	// 超长行之后，连接上的下一行仍可正常解析。
	line, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "/msg r1:after", line)
}
