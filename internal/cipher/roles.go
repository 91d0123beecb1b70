package cipher

import (
	"path"
	"strings"
)

// Role classifies a story file by which key protects it.
type Role int

const (
	// RoleMedia files (images, audio, li/ri/si indexes) use the shared or
	// per-content key.
	RoleMedia Role = iota
	// RoleAuthorization is the bt marker binding content to one device.
	RoleAuthorization
	// RoleExempt files (ni, nm) are never ciphered.
	RoleExempt
)

func (r Role) String() string {
	switch r {
	case RoleAuthorization:
		return "authorization"
	case RoleExempt:
		return "exempt"
	default:
		return "media"
	}
}

// RoleOf returns the role of an on-device relative path. Both slash styles
// are accepted since archives produced on Windows carry backslashes.
func RoleOf(name string) Role {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	switch base {
	case "bt":
		return RoleAuthorization
	case "ni", "nm":
		return RoleExempt
	default:
		return RoleMedia
	}
}

// KeySet is the key material available for one content on one device.
type KeySet struct {
	Device  Key
	Content Key
}

// For returns the key protecting the file at name. A zero Key means the file
// is stored in clear.
func (s KeySet) For(name string) Key {
	switch RoleOf(name) {
	case RoleAuthorization:
		return s.Device
	case RoleExempt:
		return Key{}
	default:
		return s.Content
	}
}

// Encipher converts plain file bytes into their on-device form.
func (s KeySet) Encipher(name string, plain []byte) ([]byte, error) {
	return EncipherHeader(plain, s.For(name))
}

// Decipher converts on-device file bytes into plain form.
func (s KeySet) Decipher(name string, data []byte) ([]byte, error) {
	return DecipherHeader(data, s.For(name))
}
