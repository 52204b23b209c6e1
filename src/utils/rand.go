package utils

import "math/rand"

func RandBytes(bsLen int) []byte {
	bs := make([]byte, bsLen)
	rand.Read(bs)
	return bs
}
