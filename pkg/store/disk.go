package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/sambigeara/sadb/pkg/types"
)

const (
	fileDirName  = "sa"
	lockFileName = ".sadb.lock"

	dirPerm       = 0o700
	lockFilePerm  = 0o600
	stateFilePerm = 0o644
)

var _ Store = (*disk)(nil)

type diskState struct {
	SAs []diskSA `yaml:"sas,omitempty"`
}

type diskSA struct {
	EKID        string `yaml:"ekid,omitempty"`
	ECS         string `yaml:"ecs,omitempty"`
	IV          string `yaml:"iv,omitempty"`
	AKID        string `yaml:"akid,omitempty"`
	ACS         string `yaml:"acs,omitempty"`
	ARSN        string `yaml:"arsn,omitempty"`
	ABM         string `yaml:"abm,omitempty"`
	ECSLen      int    `yaml:"ecsLen,omitempty"`
	IVLen       int    `yaml:"ivLen,omitempty"`
	ACSLen      int    `yaml:"acsLen,omitempty"`
	SHIVFLen    int    `yaml:"shivfLen"`
	SHSNFLen    int    `yaml:"shsnfLen"`
	SHPLFLen    int    `yaml:"shplfLen"`
	STMACFLen   int    `yaml:"stmacfLen"`
	ARSNLen     int    `yaml:"arsnLen,omitempty"`
	ARSNW       int    `yaml:"arsnw"`
	ABMLen      int    `yaml:"abmLen,omitempty"`
	SPI         uint16 `yaml:"spi"`
	SCID        uint16 `yaml:"scid"`
	State       int    `yaml:"saState"`
	ServiceType int    `yaml:"serviceType"`
	VCID        uint8  `yaml:"vcid"`
	TFVN        uint8  `yaml:"tfvn"`
	MAPID       uint8  `yaml:"mapid,omitempty"`
}

// disk keeps one YAML document per frame type. The whole document is
// rewritten on every mutation.
type disk struct {
	path string
	ft   types.FrameType
	mu   sync.Mutex
}

// OpenFile opens the YAML backend under dir and takes an exclusive lock
// for the lifetime of the returned Set.
func OpenFile(dir string) (*Set, error) {
	saDir := filepath.Join(dir, fileDirName)
	if err := os.MkdirAll(saDir, dirPerm); err != nil {
		return nil, fmt.Errorf("create sa dir: %w", err)
	}

	lf, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, lockFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open store lock: %w", err)
	}
	if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = lf.Close()
		return nil, fmt.Errorf("lock store: %w", err)
	}

	set := &Set{stores: make(map[types.FrameType]Store, len(types.FrameTypes))}
	for _, ft := range types.FrameTypes {
		set.stores[ft] = &disk{ft: ft, path: filepath.Join(saDir, strings.ToLower(ft.String())+".yaml")}
	}
	set.closers = append(set.closers, func() error {
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_UN); err != nil {
			_ = lf.Close()
			return err
		}
		return lf.Close()
	})
	return set, nil
}

func (d *disk) load() (diskState, error) {
	b, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return diskState{}, nil
		}
		return diskState{}, fmt.Errorf("read %s: %w", d.ft, err)
	}

	st := diskState{}
	if len(bytes.TrimSpace(b)) == 0 {
		return st, nil
	}
	if err := yaml.Unmarshal(b, &st); err != nil {
		return diskState{}, fmt.Errorf("unmarshal %s: %w", d.ft, err)
	}
	return st, nil
}

func (d *disk) save(st diskState) error {
	b, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", d.ft, err)
	}
	if err := renameio.WriteFile(d.path, b, stateFilePerm); err != nil {
		return fmt.Errorf("replace %s: %w", d.ft, err)
	}
	return nil
}

func (d *disk) find(st diskState, scid, spi uint16) int {
	for i, rec := range st.SAs {
		if rec.SCID == scid && rec.SPI == spi {
			return i
		}
	}
	return -1
}

func (d *disk) Get(_ context.Context, scid, spi uint16) (*types.SecurityAssociation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.load()
	if err != nil {
		return nil, err
	}
	i := d.find(st, scid, spi)
	if i < 0 {
		return nil, notFound(d.ft, scid, spi)
	}
	return fromDisk(d.ft, st.SAs[i])
}

func (d *disk) List(_ context.Context, f Filter) ([]*types.SecurityAssociation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.load()
	if err != nil {
		return nil, err
	}
	out := make([]*types.SecurityAssociation, 0, len(st.SAs))
	for _, rec := range st.SAs {
		sa, err := fromDisk(d.ft, rec)
		if err != nil {
			return nil, err
		}
		if f.Match(sa) {
			out = append(out, sa)
		}
	}
	sortByIdentity(out)
	return out, nil
}

func (d *disk) Insert(_ context.Context, sa *types.SecurityAssociation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.load()
	if err != nil {
		return err
	}
	if d.find(st, sa.SCID, sa.SPI) >= 0 {
		return exists(d.ft, sa.SCID, sa.SPI)
	}
	st.SAs = append(st.SAs, toDisk(sa))
	return d.save(st)
}

func (d *disk) Update(_ context.Context, sa *types.SecurityAssociation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.load()
	if err != nil {
		return err
	}
	i := d.find(st, sa.SCID, sa.SPI)
	if i < 0 {
		return notFound(d.ft, sa.SCID, sa.SPI)
	}
	st.SAs[i] = toDisk(sa)
	return d.save(st)
}

func (d *disk) Delete(_ context.Context, scid, spi uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.load()
	if err != nil {
		return err
	}
	i := d.find(st, scid, spi)
	if i < 0 {
		return notFound(d.ft, scid, spi)
	}
	st.SAs = append(st.SAs[:i], st.SAs[i+1:]...)
	return d.save(st)
}

func toDisk(sa *types.SecurityAssociation) diskSA {
	return diskSA{
		SPI:         sa.SPI,
		SCID:        sa.SCID,
		VCID:        sa.VCID,
		TFVN:        sa.TFVN,
		MAPID:       sa.MAPID,
		State:       int(sa.State),
		ServiceType: int(sa.ServiceType),
		EKID:        sa.EKID,
		ECS:         encodeHex(sa.ECS),
		ECSLen:      sa.ECSLen,
		IV:          encodeHex(sa.IV),
		IVLen:       sa.IVLen,
		AKID:        sa.AKID,
		ACS:         encodeHex(sa.ACS),
		ACSLen:      sa.ACSLen,
		SHIVFLen:    sa.SHIVFLen,
		SHSNFLen:    sa.SHSNFLen,
		SHPLFLen:    sa.SHPLFLen,
		STMACFLen:   sa.STMACFLen,
		ARSN:        encodeHex(sa.ARSN),
		ARSNLen:     sa.ARSNLen,
		ARSNW:       sa.ARSNW,
		ABM:         encodeHex(sa.ABM),
		ABMLen:      sa.ABMLen,
	}
}

func fromDisk(ft types.FrameType, rec diskSA) (*types.SecurityAssociation, error) {
	sa := &types.SecurityAssociation{
		Type:        ft,
		SPI:         rec.SPI,
		SCID:        rec.SCID,
		VCID:        rec.VCID,
		TFVN:        rec.TFVN,
		MAPID:       rec.MAPID,
		State:       types.SAState(rec.State),
		ServiceType: types.ServiceType(rec.ServiceType),
		EKID:        rec.EKID,
		ECSLen:      rec.ECSLen,
		IVLen:       rec.IVLen,
		AKID:        rec.AKID,
		ACSLen:      rec.ACSLen,
		SHIVFLen:    rec.SHIVFLen,
		SHSNFLen:    rec.SHSNFLen,
		SHPLFLen:    rec.SHPLFLen,
		STMACFLen:   rec.STMACFLen,
		ARSNLen:     rec.ARSNLen,
		ARSNW:       rec.ARSNW,
		ABMLen:      rec.ABMLen,
	}

	fields := []struct {
		dst  *types.HexBytes
		name string
		val  string
	}{
		{&sa.ECS, "ecs", rec.ECS},
		{&sa.IV, "iv", rec.IV},
		{&sa.ACS, "acs", rec.ACS},
		{&sa.ARSN, "arsn", rec.ARSN},
		{&sa.ABM, "abm", rec.ABM},
	}
	for _, f := range fields {
		b, err := decodeHex(f.val)
		if err != nil {
			return nil, fmt.Errorf("decode %s of %s: %w", f.name, sa.Identity(), err)
		}
		*f.dst = b
	}
	return sa, nil
}

func encodeHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
