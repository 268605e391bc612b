package validation

import "encoding/hex"

// Suite describes a cipher suite id as far as SA bookkeeping is concerned.
// No cryptography happens here.
type Suite struct {
	Name  string
	IVLen int
	AEAD  bool
}

var encryptionSuites = map[string]Suite{
	"01": {Name: "AES-256-GCM", IVLen: 12, AEAD: true},
	"02": {Name: "AES-256-CBC", IVLen: 16},
	"03": {Name: "AES-256-CBC-MAC", IVLen: 16},
	"04": {Name: "AES-256-CCM", IVLen: 12, AEAD: true},
}

var authenticationSuites = map[string]Suite{
	"01": {Name: "AES-256-CMAC"},
	"02": {Name: "HMAC-SHA-256"},
	"03": {Name: "HMAC-SHA-512"},
}

// EncryptionSuite looks up an ECS id.
func EncryptionSuite(ecs []byte) (Suite, bool) {
	s, ok := encryptionSuites[hex.EncodeToString(ecs)]
	return s, ok
}

// AuthenticationSuite looks up an ACS id.
func AuthenticationSuite(acs []byte) (Suite, bool) {
	s, ok := authenticationSuites[hex.EncodeToString(acs)]
	return s, ok
}
