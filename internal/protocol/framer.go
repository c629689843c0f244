package protocol

import (
	"bufio"
	"bytes"
	"io"

	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

// DefaultMaxLineBytes 为单行允许的最大字节数。
// 上传上限为 512 MiB，base64 编码后约为 683 MiB，再留出命令头的余量。
const DefaultMaxLineBytes = 768 << 20

const readerBufferSize = 64 << 10

// LineFramer 从字节流中切出以 '\n' 结尾的完整行。
//
// 约定：
//   - 半行数据会跨多次 Read 缓冲，直到收到换行符才返回；
//   - 超过 maxLineBytes 的行会被整行丢弃（读到下一个换行符为止），
//     返回 ErrLineTooLong，连接保持可用；
//   - 流在半行处结束时，残余字节被丢弃并返回 io.EOF。
type LineFramer struct {
	r   *bufio.Reader
	max int64
}

// NewLineFramer 创建一个行切分器。maxLineBytes 为非正数时使用默认值。
func NewLineFramer(r io.Reader, maxLineBytes int64) *LineFramer {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &LineFramer{
		r:   bufio.NewReaderSize(r, readerBufferSize),
		max: maxLineBytes,
	}
}

// ReadLine 返回下一条完整行，去掉结尾的 '\n'（以及可能的 '\r'）。
func (f *LineFramer) ReadLine() (string, error) {
	var buf bytes.Buffer

	for {
		chunk, err := f.r.ReadSlice('\n')
		if int64(buf.Len())+int64(len(chunk)) > f.max {
			discarded := int64(buf.Len()) + int64(len(chunk))
			buf.Reset()
			if derr := f.discardToNewline(err == nil); derr != nil {
				return "", derr
			}
			return "", merr.WrapErrLineTooLong(discarded, f.max)
		}
		buf.Write(chunk)

		switch err {
		case nil:
			return trimLineEnding(buf.String()), nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			// 残余的半行直接丢弃。
			return "", io.EOF
		default:
			return "", err
		}
	}
}

// discardToNewline 丢弃当前行剩余的全部字节。
// done 为 true 表示换行符已经读到，无需继续丢弃。
func (f *LineFramer) discardToNewline(done bool) error {
	for !done {
		_, err := f.r.ReadSlice('\n')
		switch err {
		case nil:
			done = true
		case bufio.ErrBufferFull:
			continue
		default:
			return err
		}
	}
	return nil
}

func trimLineEnding(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
