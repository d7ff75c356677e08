package message

import "math/rand"

// MsgIDLen is the length of generated message ids.
const MsgIDLen = 12

const msgIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewMsgID generates a 12-character lowercase-alphanumeric message id.
// Uniformity matters more than unpredictability here, so math/rand
// (whose global source seeds itself from the OS) is enough.
func NewMsgID() string {
	b := make([]byte, MsgIDLen)
	for i := range b {
		b[i] = msgIDAlphabet[rand.Intn(len(msgIDAlphabet))]
	}
	return string(b)
}

// ValidMsgID reports whether s looks like a generated message id.
func ValidMsgID(s string) bool {
	if len(s) != MsgIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
