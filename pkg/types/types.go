package types

import (
	"fmt"
	"strconv"
	"strings"
)

// FrameType selects the CCSDS transfer frame stream an SA protects.
// FrameTypeAll is a query-only union of the three real types.
type FrameType uint8

const (
	FrameTypeUnspecified FrameType = iota
	FrameTypeTC
	FrameTypeTM
	FrameTypeAOS
	FrameTypeAll
)

// FrameTypes lists the persisted frame types in fan-out order.
var FrameTypes = []FrameType{FrameTypeTC, FrameTypeTM, FrameTypeAOS}

func (f FrameType) String() string {
	switch f {
	case FrameTypeTC:
		return "TC"
	case FrameTypeTM:
		return "TM"
	case FrameTypeAOS:
		return "AOS"
	case FrameTypeAll:
		return "ALL"
	default:
		return "UNSPECIFIED"
	}
}

// Concrete reports whether f names a real, persisted frame type.
func (f FrameType) Concrete() bool {
	return f == FrameTypeTC || f == FrameTypeTM || f == FrameTypeAOS
}

func ParseFrameType(s string) (FrameType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TC":
		return FrameTypeTC, nil
	case "TM":
		return FrameTypeTM, nil
	case "AOS":
		return FrameTypeAOS, nil
	case "ALL":
		return FrameTypeAll, nil
	default:
		return FrameTypeUnspecified, fmt.Errorf("unknown frame type %q (use: tc|tm|aos|all)", s)
	}
}

func (f FrameType) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FrameType) UnmarshalText(b []byte) error {
	v, err := ParseFrameType(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// SAState is derived from key bindings and explicit start/stop/expire
// transitions; it is never set directly by callers.
type SAState uint8

const (
	SAStateNone SAState = iota
	SAStateUnkeyed
	SAStateKeyed
	SAStateOperational
)

func (s SAState) String() string {
	switch s {
	case SAStateUnkeyed:
		return "Unkeyed"
	case SAStateKeyed:
		return "Keyed"
	case SAStateOperational:
		return "Operational"
	default:
		return "None"
	}
}

func ParseSAState(s string) (SAState, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		st := SAState(n) //nolint:gosec
		if n >= int(SAStateUnkeyed) && n <= int(SAStateOperational) {
			return st, nil
		}
		return SAStateNone, fmt.Errorf("unknown sa state code %d", n)
	}
	switch strings.ToLower(s) {
	case "unkeyed":
		return SAStateUnkeyed, nil
	case "keyed":
		return SAStateKeyed, nil
	case "operational":
		return SAStateOperational, nil
	default:
		return SAStateNone, fmt.Errorf("unknown sa state %q", s)
	}
}

func (s SAState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SAState) UnmarshalText(b []byte) error {
	v, err := ParseSAState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ServiceType selects which SDLS services an SA applies to its frames.
type ServiceType uint8

const (
	ServicePlaintext ServiceType = iota
	ServiceEncryption
	ServiceAuthentication
	ServiceAuthenticatedEncryption
)

func (s ServiceType) String() string {
	switch s {
	case ServicePlaintext:
		return "Plaintext"
	case ServiceEncryption:
		return "Encryption"
	case ServiceAuthentication:
		return "Authentication"
	case ServiceAuthenticatedEncryption:
		return "AuthenticatedEncryption"
	default:
		return "ServiceType(" + strconv.Itoa(int(s)) + ")"
	}
}

// EST reports whether the encryption service is enabled.
func (s ServiceType) EST() bool {
	return s == ServiceEncryption || s == ServiceAuthenticatedEncryption
}

// AST reports whether the authentication service is enabled.
func (s ServiceType) AST() bool {
	return s == ServiceAuthentication || s == ServiceAuthenticatedEncryption
}

// ServiceTypeFromFlags maps est/ast service tags back to a service type.
func ServiceTypeFromFlags(est, ast bool) ServiceType {
	switch {
	case est && ast:
		return ServiceAuthenticatedEncryption
	case est:
		return ServiceEncryption
	case ast:
		return ServiceAuthentication
	default:
		return ServicePlaintext
	}
}

// ParseServiceType accepts the numeric code 0-3 or the service name.
func ParseServiceType(s string) (ServiceType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(ServicePlaintext) || n > int(ServiceAuthenticatedEncryption) {
			return 0, fmt.Errorf("service type code %d out of range 0-3", n)
		}
		return ServiceType(n), nil //nolint:gosec
	}

	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch norm {
	case "plaintext", "clear":
		return ServicePlaintext, nil
	case "encryption", "enc":
		return ServiceEncryption, nil
	case "authentication", "auth":
		return ServiceAuthentication, nil
	case "authenticatedencryption", "aead", "authenc":
		return ServiceAuthenticatedEncryption, nil
	default:
		return 0, fmt.Errorf("unknown service type %q", s)
	}
}

func (s ServiceType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ServiceType) UnmarshalText(b []byte) error {
	v, err := ParseServiceType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Identity addresses one SA within its frame type.
type Identity struct {
	Type FrameType
	SCID uint16
	SPI  uint16
}

func (id Identity) String() string {
	return fmt.Sprintf("%s SPI %d / SCID %d", id.Type, id.SPI, id.SCID)
}

// GVCID identifies a virtual channel stream that may carry at most one
// operational SA.
type GVCID struct {
	Type  FrameType
	SCID  uint16
	VCID  uint8
	MAPID uint8
	TFVN  uint8
}

func (g GVCID) String() string {
	if g.Type == FrameTypeTC {
		return fmt.Sprintf("%s tfvn=%d scid=%d vcid=%d mapid=%d", g.Type, g.TFVN, g.SCID, g.VCID, g.MAPID)
	}
	return fmt.Sprintf("%s tfvn=%d scid=%d vcid=%d", g.Type, g.TFVN, g.SCID, g.VCID)
}
