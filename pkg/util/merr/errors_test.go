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
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrRoomNotFound("ABCDEFGHIJ")
	errors.Wrap(err, "failed to resolve room")
	s.ErrorIs(err, ErrRoomNotFound)
	s.Equal(Code(ErrRoomNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errors.New("opaque")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newWstedError("new error", ErrRoomNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrRoomNotFound))
}

func (s *ErrSuite) TestWrap() {
	// Room 相关错误。
	s.ErrorIs(WrapErrRoomNotFound("XYZ123ABCD", "join"), ErrRoomNotFound)
	s.ErrorIs(WrapErrRoomStorage("XYZ123ABCD", errors.New("disk gone")), ErrRoomStorage)

	// Session 相关错误。
	s.ErrorIs(WrapErrSessionNotJoined(7, "msg"), ErrSessionNotJoined)
	s.ErrorIs(WrapErrSessionClosed(7), ErrSessionClosed)
	s.ErrorIs(WrapErrSessionBusy(7), ErrSessionBusy)

	// File 相关错误。
	s.ErrorIs(WrapErrFileNotFound("XYZ123ABCD", "a.txt"), ErrFileNotFound)
	s.ErrorIs(WrapErrFileEmpty("a.txt"), ErrFileEmpty)
	s.ErrorIs(WrapErrFileTooLarge("a.txt", 1024, 512), ErrFileTooLarge)

	// Protocol 相关错误。
	s.ErrorIs(WrapErrLineUnparseable("not a command"), ErrLineUnparseable)
	s.ErrorIs(WrapErrBadPayload("a.txt", errors.New("illegal base64")), ErrBadPayload)
	s.ErrorIs(WrapErrLineTooLong(1<<31, 1<<30), ErrLineTooLong)
}

func (s *ErrSuite) TestIsRetriable() {
	s.True(IsRetriable(ErrRoomStorage))
	s.True(IsRetriable(WrapErrSessionBusy(1)))
	s.False(IsRetriable(ErrFileNotFound))
	s.False(IsRetriable(nil))
}

func (s *ErrSuite) TestUnparseableLineTruncated() {
	err := WrapErrLineUnparseable(strings.Repeat("x", 1024))
	s.ErrorIs(err, ErrLineUnparseable)
	s.Less(len(Message(err)), 256)
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
	)

	err := CombineErrors(errFirst, errSecond)
	s.ErrorIs(err, errFirst)
	s.ErrorIs(err, errSecond)
	s.NoError(CombineErrors(nil, nil))
	s.ErrorIs(CombineErrors(nil, errSecond), errSecond)
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
