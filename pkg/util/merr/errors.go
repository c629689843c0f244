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
	"github.com/cockroachdb/errors"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Room related
	ErrRoomNotFound = newWstedError("room not found", 100, false)
	ErrRoomStorage  = newWstedError("room storage failure", 101, true)

	// Session related
	ErrSessionNotJoined = newWstedError("session has not joined a room", 200, false)
	ErrSessionClosed    = newWstedError("session closed", 201, false)
	ErrSessionBusy      = newWstedError("session send queue full", 202, true)

	// File related
	ErrFileNotFound = newWstedError("file not found", 300, false)
	ErrFileEmpty    = newWstedError("file payload empty", 301, false)
	ErrFileTooLarge = newWstedError("file payload too large", 302, false)

	// Protocol related
	ErrLineUnparseable = newWstedError("line matches no command grammar", 400, false)
	ErrBadPayload      = newWstedError("payload is not valid base64", 401, false)
	ErrLineTooLong     = newWstedError("line exceeds maximum length", 402, false)

	// Generic
	ErrParameterInvalid = newWstedError("invalid parameter", 1100, false)

	errUnexpected = newWstedError("unexpected error", (1<<16)-1, false)
	errCanceled   = newWstedError("canceled", CanceledCode, true)
	errTimeout    = newWstedError("timeout", TimeoutCode, true)
)

// wstedError 为带稳定错误码的叶子错误类型。
// errCode 用于日志与监控中的稳定标识，retriable 标记该错误是否值得重试。
type wstedError struct {
	msg       string
	errCode   int32
	retriable bool
	detail    string
}

func newWstedError(msg string, code int32, retriable bool) wstedError {
	return wstedError{
		msg:       msg,
		errCode:   code,
		retriable: retriable,
		detail:    msg,
	}
}

func (e wstedError) code() int32 {
	return e.errCode
}

func (e wstedError) Error() string {
	return e.msg
}

func (e wstedError) Detail() string {
	return e.detail
}

// Is 按错误码判断两个叶子错误是否等价。
func (e wstedError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(wstedError); ok {
		return e.errCode == cause.errCode
	}
	return false
}
