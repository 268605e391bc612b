// Package validation enforces the field-level and cross-field invariants of
// security associations before they reach a store.
package validation

import (
	"fmt"
	"strings"

	"github.com/sambigeara/sadb/pkg/antireplay"
	"github.com/sambigeara/sadb/pkg/types"
)

type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpKey
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpKey:
		return "key"
	default:
		return "unknown"
	}
}

const (
	maxSPI     = 0xffff
	maxTFVN    = 3
	maxMAPID   = 63
	maxVCID    = 63
	maxTMVCID  = 7
	maxSCID    = 1023
	maxAOSSCID = 255
)

// Engine merges request params into records and validates the result.
type Engine struct {
	defaults types.Defaults
}

func New(d types.Defaults) *Engine {
	return &Engine{defaults: d}
}

// Apply merges p into a clone of base (a fresh record for OpCreate) and
// validates the outcome. base is never modified. Identity fields are only
// read on create; on update and key the caller has already resolved them.
func (e *Engine) Apply(ft types.FrameType, base *types.SecurityAssociation, p types.Params, op Op) (*types.SecurityAssociation, error) {
	if !ft.Concrete() {
		return nil, FrameTypeError(ft)
	}
	c := &collector{}

	var rec *types.SecurityAssociation
	switch op {
	case OpCreate:
		rec = types.New(ft, e.defaults)
	default:
		if base == nil {
			return nil, fmt.Errorf("%s requires an existing record", op)
		}
		rec = base.Clone()
	}

	if op == OpKey {
		rejectNonKeyParams(c, p)
	}
	if op == OpCreate {
		applyIdentity(c, ft, rec, p)
	} else {
		applyChannel(c, ft, rec, p)
	}
	applyService(c, rec, p)
	applyEncryption(c, rec, p)
	applyAuthentication(c, rec, p)
	applyLengths(c, rec, p)
	applyAntiReplay(c, rec, p, op)

	if err := c.result(); err != nil {
		return nil, err
	}
	if err := Validate(rec, op); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the cross-field invariants of a complete record.
func Validate(sa *types.SecurityAssociation, op Op) error {
	c := &collector{}

	if !sa.Type.Concrete() {
		return FrameTypeError(sa.Type)
	}
	if op == OpCreate && sa.SPI == 0 {
		c.add("spi", RuleRange, "spi must be >= 1")
	}
	checkChannelRanges(c, sa.Type, int(sa.SCID), int(sa.VCID), int(sa.MAPID), int(sa.TFVN))

	if (sa.EKID == "") != (len(sa.ECS) == 0) {
		c.add("ekid", RuleEncryptionPair, "ekid and ecs must be bound together")
	}
	if (sa.AKID == "") != (len(sa.ACS) == 0) {
		c.add("akid", RuleAuthPair, "akid and acs must be bound together")
	}

	var suite Suite
	var haveSuite bool
	if len(sa.ECS) > 0 {
		if sa.ECSLen != len(sa.ECS) {
			c.add("ecsLen", RuleLength, fmt.Sprintf("ecs length %d does not match %d byte ecs", sa.ECSLen, len(sa.ECS)))
		}
		suite, haveSuite = EncryptionSuite(sa.ECS)
		if !haveSuite {
			c.add("ecs", RuleSuite, fmt.Sprintf("unsupported encryption cipher suite %s", sa.ECS))
		}
	}
	if len(sa.ACS) > 0 {
		if sa.ACSLen != len(sa.ACS) {
			c.add("acsLen", RuleLength, fmt.Sprintf("acs length %d does not match %d byte acs", sa.ACSLen, len(sa.ACS)))
		}
		if _, ok := AuthenticationSuite(sa.ACS); !ok {
			c.add("acs", RuleSuite, fmt.Sprintf("unsupported authentication cipher suite %s", sa.ACS))
		}
	}

	if len(sa.IV) > 0 && sa.IVLen != len(sa.IV) {
		c.add("ivLen", RuleIV, fmt.Sprintf("iv length %d does not match %d byte iv", sa.IVLen, len(sa.IV)))
	}
	if sa.ServiceType == types.ServiceAuthenticatedEncryption && haveSuite && sa.IVLen != suite.IVLen {
		c.add("ivLen", RuleIV, fmt.Sprintf("%s requires a %d byte iv, got %d", suite.Name, suite.IVLen, sa.IVLen))
	}

	if len(sa.ARSN) > 0 && sa.ARSNLen != len(sa.ARSN) {
		c.add("arsnLen", RuleARSN, fmt.Sprintf("arsn length %d does not match %d byte arsn", sa.ARSNLen, len(sa.ARSN)))
	}
	if len(sa.ABM) > 0 && sa.ABMLen != len(sa.ABM) {
		c.add("abmLen", RuleABM, fmt.Sprintf("abm length %d does not match %d byte abm", sa.ABMLen, len(sa.ABM)))
	}

	for _, f := range []struct {
		name string
		v    int
	}{
		{"ivLen", sa.IVLen},
		{"shivfLen", sa.SHIVFLen},
		{"shsnfLen", sa.SHSNFLen},
		{"shplfLen", sa.SHPLFLen},
		{"stmacfLen", sa.STMACFLen},
		{"arsnLen", sa.ARSNLen},
		{"arsnw", sa.ARSNW},
		{"abmLen", sa.ABMLen},
	} {
		if f.v < 0 {
			c.add(f.name, RuleLength, fmt.Sprintf("%s must be >= 0, got %d", f.name, f.v))
		}
	}
	if sa.ARSNLen > antireplay.MaxARSNLen {
		c.add("arsnLen", RuleLength, fmt.Sprintf("arsnLen must be <= %d, got %d", antireplay.MaxARSNLen, sa.ARSNLen))
	}
	if sa.ARSNW > antireplay.MaxWindow {
		c.add("arsnw", RuleLength, fmt.Sprintf("arsnw must be <= %d, got %d", antireplay.MaxWindow, sa.ARSNW))
	}

	return c.result()
}

func rejectNonKeyParams(c *collector, p types.Params) {
	for _, f := range []struct {
		name string
		set  bool
	}{
		{"vcid", p.VCID != nil},
		{"tfvn", p.TFVN != nil},
		{"mapid", p.MAPID != nil},
		{"serviceType", p.ServiceType != nil || p.EST != nil || p.AST != nil},
		{"shivfLen", p.SHIVFLen != nil},
		{"shsnfLen", p.SHSNFLen != nil},
		{"shplfLen", p.SHPLFLen != nil},
		{"stmacfLen", p.STMACFLen != nil},
		{"arsn", p.ARSN != nil || p.ARSNLen != nil},
		{"arsnw", p.ARSNW != nil},
		{"abm", p.ABM != nil || p.ABMLen != nil},
	} {
		if f.set {
			c.add(f.name, RuleNotAllowed, "only key bindings and iv may change on rekey; use update")
		}
	}
	if !p.TouchesKeys() {
		c.add("ekid", RuleRequired, "rekey requires ekid/ecs or akid/acs")
	}
}

type intField struct {
	name string
	v    *int
}

func applyIdentity(c *collector, ft types.FrameType, rec *types.SecurityAssociation, p types.Params) {
	if p.SPI != nil {
		if *p.SPI < 1 || *p.SPI > maxSPI {
			c.add("spi", RuleRange, fmt.Sprintf("spi must be within 1-%d, got %d", maxSPI, *p.SPI))
		} else {
			rec.SPI = uint16(*p.SPI) //nolint:gosec
		}
	}

	required := []intField{{"tfvn", p.TFVN}, {"scid", p.SCID}, {"vcid", p.VCID}}
	if ft == types.FrameTypeTC {
		required = append(required, intField{"mapid", p.MAPID})
	}
	for _, r := range required {
		if r.v == nil {
			c.add(r.name, RuleRequired, r.name+" is required")
		}
	}

	if p.SCID != nil {
		scid, ok := inRange(c, "scid", *p.SCID, scidLimit(ft))
		if ok {
			rec.SCID = uint16(scid) //nolint:gosec
		}
	}
	applyChannel(c, ft, rec, p)
}

func applyChannel(c *collector, ft types.FrameType, rec *types.SecurityAssociation, p types.Params) {
	if p.VCID != nil {
		if v, ok := inRange(c, "vcid", *p.VCID, vcidLimit(ft)); ok {
			rec.VCID = uint8(v) //nolint:gosec
		}
	}
	if p.TFVN != nil {
		if v, ok := inRange(c, "tfvn", *p.TFVN, maxTFVN); ok {
			rec.TFVN = uint8(v) //nolint:gosec
		}
	}
	if p.MAPID != nil {
		if ft != types.FrameTypeTC && *p.MAPID != 0 {
			c.add("mapid", RuleNotAllowed, fmt.Sprintf("mapid applies to TC only, not %s", ft))
		} else if v, ok := inRange(c, "mapid", *p.MAPID, maxMAPID); ok {
			rec.MAPID = uint8(v) //nolint:gosec
		}
	}
}

func checkChannelRanges(c *collector, ft types.FrameType, scid, vcid, mapid, tfvn int) {
	inRange(c, "scid", scid, scidLimit(ft))
	inRange(c, "vcid", vcid, vcidLimit(ft))
	inRange(c, "tfvn", tfvn, maxTFVN)
	if ft != types.FrameTypeTC && mapid != 0 {
		c.add("mapid", RuleNotAllowed, fmt.Sprintf("mapid applies to TC only, not %s", ft))
	}
}

func inRange(c *collector, field string, v, limit int) (int, bool) {
	if v < 0 || v > limit {
		c.add(field, RuleRange, fmt.Sprintf("%s must be within 0-%d, got %d", field, limit, v))
		return 0, false
	}
	return v, true
}

func scidLimit(ft types.FrameType) int {
	if ft == types.FrameTypeAOS {
		return maxAOSSCID
	}
	return maxSCID
}

func vcidLimit(ft types.FrameType) int {
	if ft == types.FrameTypeTM {
		return maxTMVCID
	}
	return maxVCID
}

func applyService(c *collector, rec *types.SecurityAssociation, p types.Params) {
	switch {
	case p.ServiceType != nil:
		st, err := types.ParseServiceType(*p.ServiceType)
		if err != nil {
			c.add("serviceType", RuleServiceType, err.Error())
			return
		}
		rec.ServiceType = st
	case p.EST != nil || p.AST != nil:
		est, ast := rec.EST(), rec.AST()
		if p.EST != nil {
			est = *p.EST
		}
		if p.AST != nil {
			ast = *p.AST
		}
		rec.ServiceType = types.ServiceTypeFromFlags(est, ast)
	}
}

func applyEncryption(c *collector, rec *types.SecurityAssociation, p types.Params) {
	ekid := p.EKID != nil && strings.TrimSpace(*p.EKID) != ""
	ecs := p.ECS != nil && strings.TrimSpace(*p.ECS) != ""
	if ekid != ecs {
		c.add("ekid", RuleEncryptionPair, "ekid requires ecs and ecs requires ekid")
	}
	if p.ECSLen != nil && !ecs {
		c.add("ecsLen", RuleEncryptionPair, "ecsLen requires ecs")
	}
	if ekid && ecs {
		rec.EKID = strings.TrimSpace(*p.EKID)
		if b, ok := parseHex(c, "ecs", *p.ECS); ok {
			rec.ECS = b
			rec.ECSLen = lenOr(p.ECSLen, len(b))
		}
	}

	switch {
	case p.IV != nil:
		b, ok := parseHex(c, "iv", *p.IV)
		if !ok {
			return
		}
		rec.IV = b
		rec.IVLen = lenOr(p.IVLen, len(b))
	case p.IVLen != nil:
		rec.IVLen = *p.IVLen
	case ekid && ecs && rec.IVLen == 0:
		if suite, ok := EncryptionSuite(rec.ECS); ok {
			rec.IVLen = suite.IVLen
		}
	}
}

func applyAuthentication(c *collector, rec *types.SecurityAssociation, p types.Params) {
	akid := p.AKID != nil && strings.TrimSpace(*p.AKID) != ""
	acs := p.ACS != nil && strings.TrimSpace(*p.ACS) != ""
	if akid != acs {
		c.add("akid", RuleAuthPair, "akid requires acs and acs requires akid")
	}
	if p.ACSLen != nil && !acs {
		c.add("acsLen", RuleAuthPair, "acsLen requires acs")
	}
	if akid && acs {
		rec.AKID = strings.TrimSpace(*p.AKID)
		if b, ok := parseHex(c, "acs", *p.ACS); ok {
			rec.ACS = b
			rec.ACSLen = lenOr(p.ACSLen, len(b))
		}
	}
}

func applyLengths(c *collector, rec *types.SecurityAssociation, p types.Params) {
	for _, f := range []struct {
		name string
		in   *int
		out  *int
	}{
		{"shivfLen", p.SHIVFLen, &rec.SHIVFLen},
		{"shsnfLen", p.SHSNFLen, &rec.SHSNFLen},
		{"shplfLen", p.SHPLFLen, &rec.SHPLFLen},
		{"stmacfLen", p.STMACFLen, &rec.STMACFLen},
	} {
		if f.in == nil {
			continue
		}
		if *f.in < 0 {
			c.add(f.name, RuleLength, fmt.Sprintf("%s must be >= 0, got %d", f.name, *f.in))
			continue
		}
		*f.out = *f.in
	}
}

func applyAntiReplay(c *collector, rec *types.SecurityAssociation, p types.Params, op Op) {
	if p.ARSNW != nil {
		if *p.ARSNW < 0 {
			c.add("arsnw", RuleLength, fmt.Sprintf("arsnw must be >= 0, got %d", *p.ARSNW))
			return
		}
		if *p.ARSNW > antireplay.MaxWindow {
			c.add("arsnw", RuleLength, fmt.Sprintf("arsnw must be <= %d, got %d", antireplay.MaxWindow, *p.ARSNW))
			return
		}
		rec.ARSNW = *p.ARSNW
	}

	if p.ARSNLen != nil {
		if *p.ARSNLen < 0 {
			c.add("arsnLen", RuleARSN, fmt.Sprintf("arsnLen must be >= 0, got %d", *p.ARSNLen))
			return
		}
		if *p.ARSNLen > antireplay.MaxARSNLen {
			c.add("arsnLen", RuleLength, fmt.Sprintf("arsnLen must be <= %d, got %d", antireplay.MaxARSNLen, *p.ARSNLen))
			return
		}
		rec.ARSNLen = *p.ARSNLen
	}

	if p.ARSN != nil {
		if p.ARSNLen == nil && (op == OpCreate || rec.ARSNLen == 0) {
			c.add("arsnLen", RuleARSN, "arsn requires arsnLen")
			return
		}
		b, ok := parseHex(c, "arsn", *p.ARSN)
		if !ok {
			return
		}
		if len(b) != rec.ARSNLen {
			c.add("arsn", RuleARSN, fmt.Sprintf("arsn is %d bytes but arsnLen is %d", len(b), rec.ARSNLen))
			return
		}
		rec.ARSN = b
	} else if p.ARSNLen != nil && len(rec.ARSN) != rec.ARSNLen {
		b, ok := resizeCounter(rec.ARSN, rec.ARSNLen)
		if !ok {
			c.add("arsn", RuleARSN, fmt.Sprintf("stored arsn %s does not fit in %d bytes", rec.ARSN, rec.ARSNLen))
			return
		}
		rec.ARSN = b
	}

	if p.ABM != nil {
		b, ok := parseHex(c, "abm", *p.ABM)
		if !ok {
			return
		}
		if p.ABMLen != nil && *p.ABMLen != len(b) {
			c.add("abmLen", RuleABM, fmt.Sprintf("abmLen %d does not match %d byte abm", *p.ABMLen, len(b)))
			return
		}
		rec.ABM = b
		rec.ABMLen = len(b)
		return
	}
	if p.ABMLen != nil {
		c.add("abmLen", RuleABM, "abmLen requires abm")
		return
	}

	if p.TouchesAntiReplay() || p.ARSNLen != nil {
		abm, abmLen, err := antireplay.DeriveBitmask(rec.ARSN, rec.ARSNLen, rec.ARSNW)
		if err != nil {
			c.add("abm", RuleABM, err.Error())
			return
		}
		rec.ABM = abm
		rec.ABMLen = abmLen
	}
}

// resizeCounter re-encodes a big-endian counter in n bytes, keeping its value.
// A counter with no value starts at zero. It fails when significant bytes
// would be dropped.
func resizeCounter(cur types.HexBytes, n int) (types.HexBytes, bool) {
	out := make(types.HexBytes, n)
	if len(cur) <= n {
		copy(out[n-len(cur):], cur)
		return out, true
	}
	cut := len(cur) - n
	for _, b := range cur[:cut] {
		if b != 0 {
			return nil, false
		}
	}
	copy(out, cur[cut:])
	return out, true
}

func parseHex(c *collector, field, raw string) (types.HexBytes, bool) {
	b, err := types.ParseHex(raw)
	if err != nil {
		c.add(field, RuleHex, err.Error())
		return nil, false
	}
	return b, true
}

func lenOr(v *int, d int) int {
	if v == nil {
		return d
	}
	return *v
}
