package room

import (
	"sort"

	"github.com/lk2023060901/wsted-relay-go/pkg/util/typeutil"
)

// Room 表示一个聊天房间的成员与文件状态。
//
// 并发约定：Room 自身不加锁，所有读写都必须在持有上层互斥锁的前提下进行。
// 中继层对每条命令的"读取-修改-广播"序列整体加锁，保证状态与广播内容一致。
type Room struct {
	id string

	// members 以会话 ID 为键，值为该成员在房间内的唯一昵称。
	members map[uint64]string

	// files 记录房间内已上传的文件名，按上传顺序保存。
	// 实际文件内容由文件仓库持有，这里只维护用于列表广播的名字序列。
	files     []string
	fileIndex typeutil.Set[string]
}

// New 创建一个指定 ID 的空房间。
func New(id string) *Room {
	return &Room{
		id:        id,
		members:   make(map[uint64]string),
		fileIndex: typeutil.NewSet[string](),
	}
}

// ID 返回房间标识。
func (r *Room) ID() string {
	return r.id
}

// MemberCount 返回当前成员数。
func (r *Room) MemberCount() int {
	return len(r.members)
}

// Empty 判断房间是否已无成员。
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// HasMember 判断指定会话是否是房间成员。
func (r *Room) HasMember(sessionID uint64) bool {
	_, ok := r.members[sessionID]
	return ok
}

// MemberName 返回指定会话在房间内的昵称。
func (r *Room) MemberName(sessionID uint64) (string, bool) {
	name, ok := r.members[sessionID]
	return name, ok
}

// MemberIDs 返回当前所有成员的会话 ID。
func (r *Room) MemberIDs() []uint64 {
	ids := make([]uint64, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Usernames 返回按字典序排序后的成员昵称列表。
// map 的遍历顺序不稳定，排序后每次广播的 /users 列表才是确定的。
func (r *Room) Usernames() []string {
	names := make([]string, 0, len(r.members))
	for _, name := range r.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hasUsername 判断昵称是否已被房间内其他成员占用。
func (r *Room) hasUsername(name string) bool {
	for _, existing := range r.members {
		if existing == name {
			return true
		}
	}
	return false
}

// addMember 以指定昵称加入成员，昵称唯一性由 Store.AddMember 保证。
func (r *Room) addMember(sessionID uint64, name string) {
	r.members[sessionID] = name
}

// removeMember 移除成员并返回其昵称。
func (r *Room) removeMember(sessionID uint64) (string, bool) {
	name, ok := r.members[sessionID]
	if !ok {
		return "", false
	}
	delete(r.members, sessionID)
	return name, true
}

// AddFile 将一个文件名追加到房间文件列表。
// 文件名的冲突消解在文件仓库完成，这里只接收最终名字；重复名字忽略。
func (r *Room) AddFile(name string) {
	if r.fileIndex.Contain(name) {
		return
	}
	r.fileIndex.Insert(name)
	r.files = append(r.files, name)
}

// HasFile 判断房间内是否存在指定文件名。
func (r *Room) HasFile(name string) bool {
	return r.fileIndex.Contain(name)
}

// Files 返回按上传顺序排列的文件名列表。
func (r *Room) Files() []string {
	out := make([]string, len(r.files))
	copy(out, r.files)
	return out
}
