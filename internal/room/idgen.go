package room

import (
	"math/rand"
)

// idLength 为房间 ID 的固定长度。
const idLength = 10

// idAlphabet 为房间 ID 的候选字符集，只含数字与大小写字母。
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateID 生成一个 10 位随机房间 ID。
// 唯一性不在这里保证，由 Store.CreateWithFreshID 重新抽取直到无冲突。
func generateID() string {
	buf := make([]byte, idLength)
	for i := range buf {
		buf[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return string(buf)
}
