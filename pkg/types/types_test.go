package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameType(t *testing.T) {
	tests := []struct {
		in      string
		want    FrameType
		wantErr bool
	}{
		{in: "tc", want: FrameTypeTC},
		{in: " TM ", want: FrameTypeTM},
		{in: "Aos", want: FrameTypeAOS},
		{in: "all", want: FrameTypeAll},
		{in: "", wantErr: true},
		{in: "uslp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFrameType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, FrameTypeAll.Concrete())
	assert.False(t, FrameTypeUnspecified.Concrete())
	for _, ft := range FrameTypes {
		assert.True(t, ft.Concrete(), ft.String())
	}
}

func TestServiceType(t *testing.T) {
	tests := []struct {
		in       string
		want     ServiceType
		est, ast bool
	}{
		{"0", ServicePlaintext, false, false},
		{"plaintext", ServicePlaintext, false, false},
		{"1", ServiceEncryption, true, false},
		{"enc", ServiceEncryption, true, false},
		{"2", ServiceAuthentication, false, true},
		{"Authentication", ServiceAuthentication, false, true},
		{"3", ServiceAuthenticatedEncryption, true, true},
		{"authenticated_encryption", ServiceAuthenticatedEncryption, true, true},
		{"AEAD", ServiceAuthenticatedEncryption, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseServiceType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.est, got.EST())
			assert.Equal(t, tt.ast, got.AST())
			assert.Equal(t, got, ServiceTypeFromFlags(tt.est, tt.ast))
		})
	}

	for _, bad := range []string{"4", "-1", "rot13"} {
		_, err := ParseServiceType(bad)
		require.Error(t, err, bad)
	}
}

func TestParseSAState(t *testing.T) {
	for in, want := range map[string]SAState{"1": SAStateUnkeyed, "keyed": SAStateKeyed, "Operational": SAStateOperational} {
		got, err := ParseSAState(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSAState("0")
	require.Error(t, err)
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    HexBytes
		wantErr bool
	}{
		{in: "0x01", want: HexBytes{0x01}},
		{in: "0X03E0", want: HexBytes{0x03, 0xe0}},
		{in: "abcd", want: HexBytes{0xab, 0xcd}},
		{in: "", want: nil},
		{in: "0x", want: nil},
		{in: "0x123", wantErr: true},
		{in: "0xzz", wantErr: true},
		{in: "null", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "0x03e0", HexBytes{0x03, 0xe0}.String())
	assert.Empty(t, HexBytes(nil).String())
}

func TestSecurityAssociationJSON(t *testing.T) {
	sa := New(FrameTypeTC, DefaultDefaults())
	sa.SPI, sa.SCID, sa.VCID = 20, 44, 1
	sa.ServiceType = ServiceAuthenticatedEncryption
	sa.ECS = HexBytes{0x01}
	sa.ABM = HexBytes{0x03, 0xe0}

	raw, err := json.Marshal(sa)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "TC", doc["type"])
	assert.Equal(t, "Unkeyed", doc["saState"])
	assert.Equal(t, "AuthenticatedEncryption", doc["serviceType"])
	assert.Equal(t, "0x03e0", doc["abm"])
	assert.NotContains(t, doc, "iv")
}

func TestCloneIsDeep(t *testing.T) {
	sa := &SecurityAssociation{ECS: HexBytes{0x01}, ARSN: HexBytes{0x04}}
	cp := sa.Clone()
	cp.ECS[0] = 0xff
	cp.ARSN[0] = 0xff
	assert.Equal(t, HexBytes{0x01}, sa.ECS)
	assert.Equal(t, HexBytes{0x04}, sa.ARSN)
	assert.Nil(t, (*SecurityAssociation)(nil).Clone())
}

func TestGVCIDIgnoresMAPIDOutsideTC(t *testing.T) {
	tc := &SecurityAssociation{Type: FrameTypeTC, SCID: 1, VCID: 2, MAPID: 3}
	tm := &SecurityAssociation{Type: FrameTypeTM, SCID: 1, VCID: 2, MAPID: 3}
	assert.Equal(t, uint8(3), tc.GVCID().MAPID)
	assert.Zero(t, tm.GVCID().MAPID)
	assert.Equal(t, "TC SPI 0 / SCID 1", tc.Identity().String())
}

func TestParamsServiceTypeForms(t *testing.T) {
	tests := []struct {
		in   string
		want *string
	}{
		{in: `{"serviceType":"encryption"}`, want: Str("encryption")},
		{in: `{"serviceType":3}`, want: Str("3")},
		{in: `{"serviceType":null}`},
		{in: `{"spi":4}`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p Params
			require.NoError(t, json.Unmarshal([]byte(tt.in), &p))
			assert.Equal(t, tt.want, p.ServiceType)
		})
	}

	var p Params
	require.NoError(t, json.Unmarshal([]byte(`{"spi":4,"arsnw":9,"serviceType":2}`), &p))
	assert.Equal(t, Int(4), p.SPI)
	assert.Equal(t, Int(9), p.ARSNW)
	st, err := ParseServiceType(*p.ServiceType)
	require.NoError(t, err)
	assert.Equal(t, ServiceAuthentication, st)

	require.Error(t, json.Unmarshal([]byte(`{"serviceType":true}`), &p))
}
