package types

const DefaultARSNW = 5

// FieldLengths are the security header/trailer field lengths of an SA.
type FieldLengths struct {
	SHIVFLen  int `yaml:"shivfLen"`
	SHSNFLen  int `yaml:"shsnfLen"`
	SHPLFLen  int `yaml:"shplfLen"`
	STMACFLen int `yaml:"stmacfLen"`
}

// Defaults seed fields a create request leaves unset.
type Defaults struct {
	Lengths map[FrameType]FieldLengths
	ARSNW   int
}

// DefaultDefaults returns the built-in field defaults: a 12 byte IV field and
// a 16 byte MAC field for every frame type, no sequence number or padding
// fields, and a window of five.
func DefaultDefaults() Defaults {
	std := FieldLengths{SHIVFLen: 12, STMACFLen: 16}
	return Defaults{
		ARSNW: DefaultARSNW,
		Lengths: map[FrameType]FieldLengths{
			FrameTypeTC:  std,
			FrameTypeTM:  std,
			FrameTypeAOS: std,
		},
	}
}

// New returns an Unkeyed plaintext SA of type ft carrying the defaults.
func New(ft FrameType, d Defaults) *SecurityAssociation {
	l := d.Lengths[ft]
	return &SecurityAssociation{
		Type:      ft,
		State:     SAStateUnkeyed,
		SHIVFLen:  l.SHIVFLen,
		SHSNFLen:  l.SHSNFLen,
		SHPLFLen:  l.SHPLFLen,
		STMACFLen: l.STMACFLen,
		ARSNW:     d.ARSNW,
	}
}
