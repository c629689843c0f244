// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Code 返回错误对应的稳定错误码。
// 对 nil 返回 0；对 context 取消/超时返回预定义错误码；
// 其余无法识别的错误统一归入 errUnexpected。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch cause := cause.(type) {
	case wstedError:
		return cause.code()
	default:
		if errors.Is(cause, context.Canceled) {
			return CanceledCode
		} else if errors.Is(cause, context.DeadlineExceeded) {
			return TimeoutCode
		}
		return errUnexpected.code()
	}
}

// IsRetriable 返回该错误是否值得重试。
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	cause := errors.Cause(err)
	if cause, ok := cause.(wstedError); ok {
		return cause.retriable
	}
	return lo.Contains([]error{context.Canceled, context.DeadlineExceeded}, cause)
}

// IsCanceledOrTimeout 判断错误是否由取消或超时引起。
func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func wrapFields(err error, fields ...value) error {
	for i := range fields {
		err = errors.Wrapf(err, "%s=%v", fields[i].name, fields[i].value)
	}
	return errors.WithStack(err)
}

type value struct {
	name  string
	value any
}

func field(name string, v any) value {
	return value{name: name, value: v}
}

// Room related

func WrapErrRoomNotFound(roomID string, msgAndArgs ...any) error {
	err := wrapFields(ErrRoomNotFound, field("room", roomID))
	return appendMsg(err, msgAndArgs...)
}

func WrapErrRoomStorage(roomID string, cause error, msgAndArgs ...any) error {
	err := wrapFields(errors.Wrap(ErrRoomStorage, cause.Error()), field("room", roomID))
	return appendMsg(err, msgAndArgs...)
}

// Session related

func WrapErrSessionNotJoined(sessionID uint64, command string, msgAndArgs ...any) error {
	err := wrapFields(ErrSessionNotJoined,
		field("session", sessionID),
		field("command", command),
	)
	return appendMsg(err, msgAndArgs...)
}

func WrapErrSessionClosed(sessionID uint64, msgAndArgs ...any) error {
	err := wrapFields(ErrSessionClosed, field("session", sessionID))
	return appendMsg(err, msgAndArgs...)
}

func WrapErrSessionBusy(sessionID uint64, msgAndArgs ...any) error {
	err := wrapFields(ErrSessionBusy, field("session", sessionID))
	return appendMsg(err, msgAndArgs...)
}

// File related

func WrapErrFileNotFound(roomID, filename string, msgAndArgs ...any) error {
	err := wrapFields(ErrFileNotFound,
		field("room", roomID),
		field("file", filename),
	)
	return appendMsg(err, msgAndArgs...)
}

func WrapErrFileEmpty(filename string, msgAndArgs ...any) error {
	err := wrapFields(ErrFileEmpty, field("file", filename))
	return appendMsg(err, msgAndArgs...)
}

func WrapErrFileTooLarge(filename string, size, limit int64, msgAndArgs ...any) error {
	err := wrapFields(ErrFileTooLarge,
		field("file", filename),
		field("size", size),
		field("limit", limit),
	)
	return appendMsg(err, msgAndArgs...)
}

// Protocol related

func WrapErrLineUnparseable(line string, msgAndArgs ...any) error {
	// 行内容可能包含大体积 base64 数据，只保留前缀用于定位问题。
	const maxQuoted = 64
	if len(line) > maxQuoted {
		line = line[:maxQuoted] + "..."
	}
	err := wrapFields(ErrLineUnparseable, field("line", line))
	return appendMsg(err, msgAndArgs...)
}

func WrapErrBadPayload(filename string, cause error, msgAndArgs ...any) error {
	err := wrapFields(errors.Wrap(ErrBadPayload, cause.Error()), field("file", filename))
	return appendMsg(err, msgAndArgs...)
}

func WrapErrLineTooLong(size, limit int64, msgAndArgs ...any) error {
	err := wrapFields(ErrLineTooLong,
		field("size", size),
		field("limit", limit),
	)
	return appendMsg(err, msgAndArgs...)
}

// Generic

func WrapErrParameterInvalidMsg(fmtStr string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmtStr, args...)
}

func appendMsg(err error, msgAndArgs ...any) error {
	if len(msgAndArgs) == 0 {
		return err
	}
	msg, ok := msgAndArgs[0].(string)
	if !ok {
		return err
	}
	if len(msgAndArgs) > 1 {
		return errors.Wrapf(err, msg, msgAndArgs[1:]...)
	}
	return errors.Wrap(err, msg)
}

// CombineErrors 将多个错误合并为一个错误，忽略其中的 nil。
func CombineErrors(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return errors.Join(errs...)
}

// oneLine 将错误消息压缩为单行，便于写入文本日志。
func oneLine(msg string) string {
	return strings.ReplaceAll(msg, "\n", " ")
}

// Message 返回适合记录日志的单行错误消息。
func Message(err error) string {
	if err == nil {
		return ""
	}
	return oneLine(err.Error())
}
