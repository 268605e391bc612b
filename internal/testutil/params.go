// Package testutil holds request fixtures shared by package tests.
package testutil

import "github.com/sambigeara/sadb/pkg/types"

// Channel returns create params addressing one virtual channel of ft.
// mapid is only set for TC.
func Channel(ft types.FrameType, scid, spi, vcid int) types.Params {
	p := types.Params{
		SPI:  types.Int(spi),
		SCID: types.Int(scid),
		VCID: types.Int(vcid),
		TFVN: types.Int(0),
	}
	if ft == types.FrameTypeTC {
		p.MAPID = types.Int(0)
	}
	if spi == 0 {
		p.SPI = nil
	}
	return p
}

// Keyed is Channel plus an AES-GCM encryption binding.
func Keyed(ft types.FrameType, scid, spi, vcid int) types.Params {
	p := Channel(ft, scid, spi, vcid)
	p.EKID = types.Str("kek/" + ft.String())
	p.ECS = types.Str("0x01")
	p.ServiceType = types.Str("encryption")
	return p
}

// EncryptionKey is a rekey request binding ekid to AES-GCM.
func EncryptionKey(ekid string) types.Params {
	return types.Params{EKID: types.Str(ekid), ECS: types.Str("0x01")}
}
