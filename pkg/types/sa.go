package types

// SecurityAssociation binds key references, cipher suites and anti-replay
// state to one TC, TM or AOS frame stream.
type SecurityAssociation struct {
	EKID string   `json:"ekid,omitempty"`
	AKID string   `json:"akid,omitempty"`
	ECS  HexBytes `json:"ecs,omitempty"`
	IV   HexBytes `json:"iv,omitempty"`
	ACS  HexBytes `json:"acs,omitempty"`
	ARSN HexBytes `json:"arsn,omitempty"`
	ABM  HexBytes `json:"abm,omitempty"`

	ECSLen    int `json:"ecsLen"`
	IVLen     int `json:"ivLen"`
	ACSLen    int `json:"acsLen"`
	SHIVFLen  int `json:"shivfLen"`
	SHSNFLen  int `json:"shsnfLen"`
	SHPLFLen  int `json:"shplfLen"`
	STMACFLen int `json:"stmacfLen"`
	ARSNLen   int `json:"arsnLen"`
	ARSNW     int `json:"arsnw"`
	ABMLen    int `json:"abmLen"`

	SPI  uint16 `json:"spi"`
	SCID uint16 `json:"scid"`

	Type        FrameType   `json:"type"`
	State       SAState     `json:"saState"`
	ServiceType ServiceType `json:"serviceType"`
	VCID        uint8       `json:"vcid"`
	TFVN        uint8       `json:"tfvn"`
	MAPID       uint8       `json:"mapid"`
}

func (sa *SecurityAssociation) Identity() Identity {
	return Identity{Type: sa.Type, SCID: sa.SCID, SPI: sa.SPI}
}

func (sa *SecurityAssociation) GVCID() GVCID {
	g := GVCID{Type: sa.Type, SCID: sa.SCID, VCID: sa.VCID, TFVN: sa.TFVN}
	if sa.Type == FrameTypeTC {
		g.MAPID = sa.MAPID
	}
	return g
}

func (sa *SecurityAssociation) EST() bool { return sa.ServiceType.EST() }
func (sa *SecurityAssociation) AST() bool { return sa.ServiceType.AST() }

// HasKeys reports whether any key reference is bound.
func (sa *SecurityAssociation) HasKeys() bool {
	return sa.EKID != "" || sa.AKID != ""
}

func (sa *SecurityAssociation) Clone() *SecurityAssociation {
	if sa == nil {
		return nil
	}
	out := *sa
	out.ECS = sa.ECS.Clone()
	out.IV = sa.IV.Clone()
	out.ACS = sa.ACS.Clone()
	out.ARSN = sa.ARSN.Clone()
	out.ABM = sa.ABM.Clone()
	return &out
}
