package room

import (
	"strconv"

	"github.com/lk2023060901/wsted-relay-go/pkg/util/merr"
)

// Store 维护房间 ID 到房间实例的索引，以及会话到房间的反向索引。
//
// 并发约定：Store 自身不加锁，调用方（中继层）持全局互斥锁串行化所有访问。
// 这样"查房间、改成员、取广播名单"可以作为一个原子步骤完成，
// 不会出现广播名单与成员表不一致的窗口。
type Store struct {
	rooms map[string]*Room

	// memberIndex 记录每个会话当前所在的房间 ID，用于断开时的反查。
	memberIndex map[uint64]string
}

// NewStore 创建一个空的 Store。
func NewStore() *Store {
	return &Store{
		rooms:       make(map[string]*Room),
		memberIndex: make(map[uint64]string),
	}
}

// Get 按 ID 查找房间。
func (s *Store) Get(id string) (*Room, bool) {
	r, ok := s.rooms[id]
	return r, ok
}

// Contains 判断指定 ID 的房间是否存在。
func (s *Store) Contains(id string) bool {
	_, ok := s.rooms[id]
	return ok
}

// Count 返回当前房间总数。
func (s *Store) Count() int {
	return len(s.rooms)
}

// GetOrCreate 返回指定 ID 的房间，不存在时创建一个空房间。
// 第二个返回值表示房间是否由本次调用创建。
func (s *Store) GetOrCreate(id string) (*Room, bool) {
	if r, ok := s.rooms[id]; ok {
		return r, false
	}
	r := New(id)
	s.rooms[id] = r
	return r, true
}

// CreateWithFreshID 生成一个未被占用的随机 ID 并创建房间。
// 抽取与登记在同一次调用内完成，期间调用方持锁，ID 不会被并发占用。
func (s *Store) CreateWithFreshID() *Room {
	var id string
	for {
		id = generateID()
		if !s.Contains(id) {
			break
		}
	}
	r := New(id)
	s.rooms[id] = r
	return r
}

// AddMember 将会话加入指定房间，返回实际分配的昵称。
//
// 昵称冲突时在原名后追加 "-1"，仍冲突则继续追加，
// 例如 bob、bob-1、bob-1-1。
func (s *Store) AddMember(roomID string, sessionID uint64, username string) (string, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return "", merr.WrapErrRoomNotFound(roomID)
	}

	name := username
	for r.hasUsername(name) {
		name += "-1"
	}
	r.addMember(sessionID, name)
	s.memberIndex[sessionID] = roomID
	return name, nil
}

// RoomOf 返回会话当前所在的房间。
func (s *Store) RoomOf(sessionID uint64) (*Room, bool) {
	roomID, ok := s.memberIndex[sessionID]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[roomID]
	return r, ok
}

// RemoveMember 将会话移出其所在房间，返回该房间与成员昵称。
// 会话未加入任何房间时返回 (nil, "", false)。
func (s *Store) RemoveMember(sessionID uint64) (*Room, string, bool) {
	roomID, ok := s.memberIndex[sessionID]
	if !ok {
		return nil, "", false
	}
	delete(s.memberIndex, sessionID)

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, "", false
	}
	name, ok := r.removeMember(sessionID)
	if !ok {
		return nil, "", false
	}
	return r, name, true
}

// Delete 删除指定 ID 的房间。房间不存在时是无操作。
func (s *Store) Delete(id string) {
	delete(s.rooms, id)
}

// String 便于日志输出当前规模。
func (s *Store) String() string {
	return "rooms=" + strconv.Itoa(len(s.rooms)) + " members=" + strconv.Itoa(len(s.memberIndex))
}
