package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is a partial SA description carried by create, update and rekey
// requests. A nil field was not supplied. Byte fields hold the raw user
// string so that malformed input surfaces as a validation violation.
type Params struct {
	SPI   *int `json:"spi,omitempty"`
	SCID  *int `json:"scid,omitempty"`
	VCID  *int `json:"vcid,omitempty"`
	TFVN  *int `json:"tfvn,omitempty"`
	MAPID *int `json:"mapid,omitempty"`

	ServiceType *string `json:"serviceType,omitempty"`
	EST         *bool   `json:"est,omitempty"`
	AST         *bool   `json:"ast,omitempty"`

	EKID   *string `json:"ekid,omitempty"`
	ECS    *string `json:"ecs,omitempty"`
	ECSLen *int    `json:"ecsLen,omitempty"`
	IV     *string `json:"iv,omitempty"`
	IVLen  *int    `json:"ivLen,omitempty"`

	AKID   *string `json:"akid,omitempty"`
	ACS    *string `json:"acs,omitempty"`
	ACSLen *int    `json:"acsLen,omitempty"`

	SHIVFLen  *int `json:"shivfLen,omitempty"`
	SHSNFLen  *int `json:"shsnfLen,omitempty"`
	SHPLFLen  *int `json:"shplfLen,omitempty"`
	STMACFLen *int `json:"stmacfLen,omitempty"`

	ARSN    *string `json:"arsn,omitempty"`
	ARSNLen *int    `json:"arsnLen,omitempty"`
	ARSNW   *int    `json:"arsnw,omitempty"`
	ABM     *string `json:"abm,omitempty"`
	ABMLen  *int    `json:"abmLen,omitempty"`
}

// TouchesKeys reports whether p binds or replaces a key reference or suite.
func (p *Params) TouchesKeys() bool {
	return p.EKID != nil || p.ECS != nil || p.ECSLen != nil ||
		p.AKID != nil || p.ACS != nil || p.ACSLen != nil
}

// TouchesAntiReplay reports whether p changes the sequence number or window.
func (p *Params) TouchesAntiReplay() bool {
	return p.ARSN != nil || p.ARSNW != nil
}

// UnmarshalJSON accepts serviceType as a name or as its numeric code.
func (p *Params) UnmarshalJSON(b []byte) error {
	type plain Params
	aux := struct {
		*plain
		ServiceType json.RawMessage `json:"serviceType,omitempty"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.ServiceType)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("serviceType: %w", err)
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("serviceType: %w", err)
		}
		s = n.String()
	}
	p.ServiceType = &s
	return nil
}

// Int and Str build optional fields in literals and tests.
func Int(v int) *int       { return &v }
func Str(v string) *string { return &v }
func Bool(v bool) *bool    { return &v }
