package session

import (
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/dougsko/specand/pkg/status"
)

// Instrument families, longest prefixes first so FSVA is not read as FSV
var families = []string{
	"FSMR", "FSUP", "FSVA", "FSVR", "FSWP",
	"FPL", "FPS", "FSC", "FSG", "FSH", "FSL", "FSP", "FSQ", "FSU", "FSV", "FSW", "ESR", "ZVL",
}

var firmwarePattern = regexp.MustCompile(`^\d+(\.\d+)*`)

// Capabilities describes an instrument as reported by *IDN? and *OPT?.
// It is resolved once when the session opens.
type Capabilities struct {
	Manufacturer string
	Model        string
	Family       string
	Serial       string
	FirmwareText string
	Firmware     *version.Version

	options map[string]bool
}

// ParseCapabilities reads the identification and option replies
func ParseCapabilities(idn, opt string) (*Capabilities, error) {
	fields := strings.Split(strings.TrimSpace(idn), ",")
	if len(fields) < 4 {
		return nil, status.NoData("malformed *IDN? reply %q", idn)
	}

	c := &Capabilities{
		Manufacturer: strings.TrimSpace(fields[0]),
		Model:        strings.TrimSpace(fields[1]),
		Serial:       strings.TrimSpace(fields[2]),
		FirmwareText: strings.TrimSpace(strings.Join(fields[3:], ",")),
		options:      make(map[string]bool),
	}
	c.Family = familyOf(c.Model)

	if m := firmwarePattern.FindString(c.FirmwareText); m != "" {
		if v, err := version.NewVersion(m); err == nil {
			c.Firmware = v
		}
	}

	for _, o := range strings.Split(opt, ",") {
		o = strings.ToUpper(strings.Trim(strings.TrimSpace(o), `"'`))
		if o == "" || o == "0" {
			continue
		}
		c.options[o] = true
		// "K100-LTE" and "B25/xxxx" also answer to their bare id
		if i := strings.IndexAny(o, "-/"); i > 0 {
			c.options[o[:i]] = true
		}
	}

	return c, nil
}

func familyOf(model string) string {
	upper := strings.ToUpper(model)
	// FSW-26, FSV 7, FSL6 all share their family prefix
	for _, f := range families {
		if strings.HasPrefix(upper, f) {
			return f
		}
	}
	if i := strings.IndexAny(upper, "- "); i > 0 {
		return upper[:i]
	}
	return upper
}

// SupportsOption reports whether an option such as "K10" is installed
func (c *Capabilities) SupportsOption(id string) bool {
	return c.options[strings.ToUpper(strings.TrimSpace(id))]
}

// SupportsAnyOption reports whether one of the options is installed
func (c *Capabilities) SupportsAnyOption(ids ...string) bool {
	for _, id := range ids {
		if c.SupportsOption(id) {
			return true
		}
	}
	return false
}

// Options returns the installed options, sorted
func (c *Capabilities) Options() []string {
	opts := make([]string, 0, len(c.options))
	for o := range c.options {
		opts = append(opts, o)
	}
	sort.Strings(opts)
	return opts
}

// IsFamily reports whether the instrument belongs to a family
func (c *Capabilities) IsFamily(family string) bool {
	return strings.EqualFold(c.Family, family)
}

// FirmwareAtLeast compares the firmware against a minimum version. An
// unparseable firmware never satisfies a minimum.
func (c *Capabilities) FirmwareAtLeast(minimum string) bool {
	if c.Firmware == nil {
		return false
	}
	want, err := version.NewVersion(minimum)
	if err != nil {
		return false
	}
	return c.Firmware.GreaterThanOrEqual(want)
}

// BinaryTransfer reports whether traces can be read as REAL,32 blocks.
// FSL firmware before 2.0 only answers ASCII.
func (c *Capabilities) BinaryTransfer() bool {
	if c.IsFamily("FSL") && !c.FirmwareAtLeast("2.0") {
		return false
	}
	return true
}

// Require fails with NotSupported unless one of the options is installed
func (c *Capabilities) Require(feature string, options ...string) error {
	if c.SupportsAnyOption(options...) {
		return nil
	}
	return status.NotSupported("%s requires option %s (%s %s has %v)",
		feature, strings.Join(options, "/"), c.Model, c.FirmwareText, c.Options())
}
