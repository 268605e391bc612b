package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/render"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
)

func addTypeFlag(cmd *cobra.Command, def string) {
	cmd.Flags().StringP("type", "t", def, "Frame type (tc|tm|aos)")
}

// frameType reads --type. all is only accepted by query commands.
func frameType(cmd *cobra.Command, allowAll bool) (types.FrameType, error) {
	raw, _ := cmd.Flags().GetString("type")
	if raw == "" {
		return 0, errors.New("--type is required (use: tc|tm|aos)")
	}
	ft, err := types.ParseFrameType(raw)
	if err != nil {
		return 0, err
	}
	if ft == types.FrameTypeAll && !allowAll {
		return 0, fmt.Errorf("--type all is only valid for queries (use: tc|tm|aos)")
	}
	return ft, nil
}

func addIdentityFlags(cmd *cobra.Command) {
	cmd.Flags().Uint16("scid", 0, "Spacecraft ID")
	cmd.Flags().Uint16("spi", 0, "Security Parameter Index")
	_ = cmd.MarkFlagRequired("scid")
	_ = cmd.MarkFlagRequired("spi")
}

func identity(cmd *cobra.Command) (uint16, uint16) {
	scid, _ := cmd.Flags().GetUint16("scid")
	spi, _ := cmd.Flags().GetUint16("spi")
	return scid, spi
}

// addFilterFlags registers the list filters shared by list and export.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("active", false, "Only operational SAs")
	cmd.Flags().Bool("inactive", false, "Only SAs that are not operational")
	cmd.Flags().Uint16("spi", 0, "Only SAs with this SPI")
	cmd.Flags().Uint16("scid", 0, "Only SAs with this SCID")
	cmd.MarkFlagsMutuallyExclusive("active", "inactive")
}

func filter(cmd *cobra.Command) store.Filter {
	var f store.Filter
	if cmd.Flags().Changed("spi") {
		v, _ := cmd.Flags().GetUint16("spi")
		f.SPI = &v
	}
	if cmd.Flags().Changed("scid") {
		v, _ := cmd.Flags().GetUint16("scid")
		f.SCID = &v
	}
	if active, _ := cmd.Flags().GetBool("active"); active {
		f.State = store.StateActive
	}
	if inactive, _ := cmd.Flags().GetBool("inactive"); inactive {
		f.State = store.StateInactive
	}
	return f
}

type intParam struct {
	name  string
	usage string
	dst   func(*types.Params) **int
}

type strParam struct {
	name  string
	usage string
	dst   func(*types.Params) **string
}

var channelParams = []intParam{
	{"vcid", "Virtual channel ID", func(p *types.Params) **int { return &p.VCID }},
	{"tfvn", "Transfer frame version number", func(p *types.Params) **int { return &p.TFVN }},
	{"mapid", "Multiplexer access point ID (TC only)", func(p *types.Params) **int { return &p.MAPID }},
	{"shivf-len", "Security header IV field length", func(p *types.Params) **int { return &p.SHIVFLen }},
	{"shsnf-len", "Security header sequence number field length", func(p *types.Params) **int { return &p.SHSNFLen }},
	{"shplf-len", "Security header pad length field length", func(p *types.Params) **int { return &p.SHPLFLen }},
	{"stmacf-len", "Security trailer MAC field length", func(p *types.Params) **int { return &p.STMACFLen }},
	{"iv-len", "IV length in bytes", func(p *types.Params) **int { return &p.IVLen }},
	{"arsn-len", "Anti-replay sequence number length in bytes", func(p *types.Params) **int { return &p.ARSNLen }},
	{"arsnw", "Anti-replay window size", func(p *types.Params) **int { return &p.ARSNW }},
	{"abm-len", "Anti-replay bitmask length in bytes", func(p *types.Params) **int { return &p.ABMLen }},
}

var channelStrParams = []strParam{
	{"service-type", "Service type (plaintext|encryption|authentication|aead or 0-3)", func(p *types.Params) **string { return &p.ServiceType }},
	{"iv", "Initialization vector (0x hex)", func(p *types.Params) **string { return &p.IV }},
	{"arsn", "Anti-replay sequence number (0x hex)", func(p *types.Params) **string { return &p.ARSN }},
	{"abm", "Anti-replay bitmask (0x hex)", func(p *types.Params) **string { return &p.ABM }},
}

var keyIntParams = []intParam{
	{"ecs-len", "Encryption cipher suite length", func(p *types.Params) **int { return &p.ECSLen }},
	{"acs-len", "Authentication cipher suite length", func(p *types.Params) **int { return &p.ACSLen }},
}

var keyStrParams = []strParam{
	{"ekid", "Encryption key reference", func(p *types.Params) **string { return &p.EKID }},
	{"ecs", "Encryption cipher suite (0x hex)", func(p *types.Params) **string { return &p.ECS }},
	{"akid", "Authentication key reference", func(p *types.Params) **string { return &p.AKID }},
	{"acs", "Authentication cipher suite (0x hex)", func(p *types.Params) **string { return &p.ACS }},
}

func addParamFlags(cmd *cobra.Command, ints []intParam, strs []strParam) {
	for _, f := range ints {
		cmd.Flags().Int(f.name, 0, f.usage)
	}
	for _, f := range strs {
		cmd.Flags().String(f.name, "", f.usage)
	}
}

// params collects the flags the user actually set; everything else stays nil.
func params(cmd *cobra.Command, ints []intParam, strs []strParam) types.Params {
	var p types.Params
	for _, f := range ints {
		if cmd.Flags().Changed(f.name) {
			v, _ := cmd.Flags().GetInt(f.name)
			*f.dst(&p) = types.Int(v)
		}
	}
	for _, f := range strs {
		if cmd.Flags().Changed(f.name) {
			v, _ := cmd.Flags().GetString(f.name)
			*f.dst(&p) = types.Str(v)
		}
	}
	return p
}

func allParams(cmd *cobra.Command) types.Params {
	ch := params(cmd, channelParams, channelStrParams)
	keys := params(cmd, keyIntParams, keyStrParams)
	ch.EKID, ch.ECS, ch.ECSLen = keys.EKID, keys.ECS, keys.ECSLen
	ch.AKID, ch.ACS, ch.ACSLen = keys.AKID, keys.ACS, keys.ACSLen
	return ch
}

// confirm asks a yes/no question on the command's input. Anything but an
// explicit yes, including unreadable input, is a refusal.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(cmd.OutOrStdout())
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func writeOne(cmd *cobra.Command, sa *types.SecurityAssociation) {
	render.Describe(cmd.OutOrStdout(), []*types.SecurityAssociation{sa})
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List security associations",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	addTypeFlag(cmd, "all")
	addFilterFlags(cmd)
	cmd.Flags().StringP("format", "o", string(render.FormatDescribe), "Output format (csv|describe|json)")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	return query(cmd)
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export security associations as bulk CSV",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	addTypeFlag(cmd, "all")
	addFilterFlags(cmd)
	cmd.Flags().StringP("format", "o", string(render.FormatCSV), "Output format (csv|describe|json)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	return query(cmd)
}

func query(cmd *cobra.Command) error {
	ft, err := frameType(cmd, true)
	if err != nil {
		return err
	}
	rawFormat, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(rawFormat)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sas, err := e.router.List(cmd.Context(), ft, filter(cmd))
	if err != nil {
		return err
	}
	return render.Write(cmd.OutOrStdout(), format, sas)
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one security association",
		Args:  cobra.NoArgs,
		RunE:  runGet,
	}
	addTypeFlag(cmd, "")
	addIdentityFlags(cmd)
	cmd.Flags().StringP("format", "o", string(render.FormatDescribe), "Output format (csv|describe|json)")
	return cmd
}

func runGet(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	rawFormat, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(rawFormat)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	scid, spi := identity(cmd)
	sa, err := e.router.Get(cmd.Context(), ft, scid, spi)
	if err != nil {
		return err
	}
	return render.Write(cmd.OutOrStdout(), format, []*types.SecurityAssociation{sa})
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a security association",
		Long:  "Create a security association. Without --spi the lowest unused SPI for the SCID is assigned.",
		Args:  cobra.NoArgs,
		RunE:  runCreate,
	}
	addTypeFlag(cmd, "")
	cmd.Flags().Uint16("scid", 0, "Spacecraft ID")
	cmd.Flags().Uint16("spi", 0, "Security Parameter Index (default: lowest unused)")
	_ = cmd.MarkFlagRequired("scid")
	cmd.Flags().Bool("force", false, "Replace an existing SA with the same SPI and SCID")
	addParamFlags(cmd, channelParams, channelStrParams)
	addParamFlags(cmd, keyIntParams, keyStrParams)
	return cmd
}

func runCreate(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	p := allParams(cmd)
	scid, _ := cmd.Flags().GetUint16("scid")
	p.SCID = types.Int(int(scid))
	if cmd.Flags().Changed("spi") {
		spi, _ := cmd.Flags().GetUint16("spi")
		p.SPI = types.Int(int(spi))
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sa, err := e.router.Create(cmd.Context(), ft, p, lifecycle.CreateOptions{Overwrite: force})
	if err != nil {
		return err
	}
	writeOne(cmd, sa)
	return nil
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change channel, header or anti-replay fields of a security association",
		Args:  cobra.NoArgs,
		RunE:  runUpdate,
	}
	addTypeFlag(cmd, "")
	addIdentityFlags(cmd)
	addParamFlags(cmd, channelParams, channelStrParams)
	addParamFlags(cmd, keyIntParams, keyStrParams)
	return cmd
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	p := allParams(cmd)

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	scid, spi := identity(cmd)
	sa, err := e.router.Update(cmd.Context(), ft, scid, spi, p)
	if err != nil {
		return err
	}
	writeOne(cmd, sa)
	return nil
}

func newRekeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rekey",
		Short: "Bind new key references and cipher suites to a security association",
		Args:  cobra.NoArgs,
		RunE:  runRekey,
	}
	addTypeFlag(cmd, "")
	addIdentityFlags(cmd)
	addParamFlags(cmd, keyIntParams, keyStrParams)
	cmd.Flags().Bool("force", false, "Do not ask for confirmation")
	return cmd
}

func runRekey(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	p := params(cmd, keyIntParams, keyStrParams)
	scid, spi := identity(cmd)

	if force, _ := cmd.Flags().GetBool("force"); !force {
		if !confirm(cmd, fmt.Sprintf("Rekey %s SPI %d / SCID %d?", ft, spi, scid)) {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sa, err := e.router.Key(cmd.Context(), ft, scid, spi, p)
	if err != nil {
		return err
	}
	writeOne(cmd, sa)
	return nil
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Make a keyed security association operational",
		Args:  cobra.NoArgs,
		RunE:  runStart,
	}
	addTypeFlag(cmd, "")
	addIdentityFlags(cmd)
	cmd.Flags().Bool("force", false, "Stop any operational SA on the same channel first")
	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	scid, spi := identity(cmd)
	res, err := e.router.Start(cmd.Context(), ft, scid, spi, force)
	if err != nil {
		return err
	}
	for _, s := range res.Stopped {
		fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", s.Identity())
	}
	writeOne(cmd, res.SA)
	return nil
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Return an operational security association to keyed",
		Args:  cobra.NoArgs,
		RunE:  runStop,
	}
	addTypeFlag(cmd, "")
	addIdentityFlags(cmd)
	return cmd
}

func runStop(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	scid, spi := identity(cmd)
	sa, err := e.router.Stop(cmd.Context(), ft, scid, spi)
	if err != nil {
		return err
	}
	writeOne(cmd, sa)
	return nil
}

func newExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Mark a security association unkeyed",
		Args:  cobra.NoArgs,
		RunE:  runExpire,
	}
	addTypeFlag(cmd, "")
	addIdentityFlags(cmd)
	cmd.Flags().Bool("force", false, "Do not ask for confirmation")
	return cmd
}

func runExpire(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	scid, spi := identity(cmd)

	if force, _ := cmd.Flags().GetBool("force"); !force {
		if !confirm(cmd, fmt.Sprintf("Expire %s SPI %d / SCID %d?", ft, spi, scid)) {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	sa, err := e.router.Expire(cmd.Context(), ft, scid, spi)
	if err != nil {
		return err
	}
	writeOne(cmd, sa)
	return nil
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one or more security associations of a spacecraft",
		Args:  cobra.NoArgs,
		RunE:  runDelete,
	}
	addTypeFlag(cmd, "")
	cmd.Flags().Uint16("scid", 0, "Spacecraft ID")
	cmd.Flags().UintSlice("spi", nil, "SPIs to delete (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("scid")
	_ = cmd.MarkFlagRequired("spi")
	cmd.Flags().Bool("force", false, "Do not ask for confirmation")
	return cmd
}

func runDelete(cmd *cobra.Command, _ []string) error {
	ft, err := frameType(cmd, false)
	if err != nil {
		return err
	}
	scid, _ := cmd.Flags().GetUint16("scid")
	raw, _ := cmd.Flags().GetUintSlice("spi")

	spis := make([]uint16, 0, len(raw))
	for _, v := range raw {
		if v > 0xFFFF {
			return fmt.Errorf("spi %d out of range 0-65535", v)
		}
		spis = append(spis, uint16(v))
	}

	if force, _ := cmd.Flags().GetBool("force"); !force {
		if !confirm(cmd, fmt.Sprintf("Delete %s SPI %v / SCID %d?", ft, spis, scid)) {
			fmt.Fprintln(cmd.OutOrStdout(), "aborted")
			return nil
		}
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	deleted, err := e.router.Delete(cmd.Context(), ft, scid, spis...)
	for _, spi := range deleted {
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", types.Identity{Type: ft, SCID: scid, SPI: spi})
	}
	return err
}
