package driver

import (
	"strings"

	"github.com/juju/errors"
	"gopkg.in/ini.v1"

	"github.com/NeowayLabs/msm"
	"github.com/NeowayLabs/msm/mode"
)

// Option keys. Keys are matched case-insensitively.
const (
	OptionFB           = "fb"
	OptionNoAccel      = "NoAccel"
	OptionSWCursor     = "SWCursor"
	OptionDefaultVsync = "DefaultVsync"
	OptionDebug        = "Debug"
	OptionDefaultDepth = "DefaultDepth"

	keyDriver = "Driver"
)

type (
	Options struct {
		FB           string
		NoAccel      bool
		SWCursor     bool
		DefaultVsync int
		Debug        bool

		// DefaultDepth overrides the depth the framebuffer reports.
		DefaultDepth int
	}

	// Section is a device section naming this driver.
	Section struct {
		Name    string
		Options Options

		// Problems lists options that were ignored because they could not
		// be parsed.
		Problems []error
	}
)

// DefaultOptions returns the options used for keys that are not set.
func DefaultOptions() Options {
	return Options{DefaultVsync: mode.DefaultRefresh}
}

// LoadConfig reads device sections from source, a file name or raw bytes
// as accepted by ini.Load. Sections whose Driver is not this driver are
// skipped.
func LoadConfig(source interface{}, others ...interface{}) ([]Section, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, source, others...)
	if err != nil {
		return nil, errors.Annotate(err, "loading driver configuration")
	}

	var sections []Section
	for _, sec := range cfg.Sections() {
		if !strings.EqualFold(sec.Key(keyDriver).String(), msm.DriverName) {
			continue
		}
		opts, problems := ParseOptions(sec)
		sections = append(sections, Section{
			Name:     sec.Name(),
			Options:  opts,
			Problems: problems,
		})
	}
	return sections, nil
}

// ParseOptions reads the driver options of sec. Values that do not parse
// keep their default and are reported.
func ParseOptions(sec *ini.Section) (Options, []error) {
	var problems []error
	opts := DefaultOptions()

	boolOpt := func(name string, dst *bool) {
		if !sec.HasKey(name) {
			return
		}
		v, err := sec.Key(name).Bool()
		if err != nil {
			problems = append(problems, errors.NotValidf("option %s=%q", name, sec.Key(name).String()))
			return
		}
		*dst = v
	}
	intOpt := func(name string) (int, bool) {
		if !sec.HasKey(name) {
			return 0, false
		}
		v, err := sec.Key(name).Int()
		if err != nil {
			problems = append(problems, errors.NotValidf("option %s=%q", name, sec.Key(name).String()))
			return 0, false
		}
		return v, true
	}

	opts.FB = sec.Key(OptionFB).String()
	boolOpt(OptionNoAccel, &opts.NoAccel)
	boolOpt(OptionSWCursor, &opts.SWCursor)
	boolOpt(OptionDebug, &opts.Debug)

	if v, ok := intOpt(OptionDefaultVsync); ok {
		if mode.ValidRefresh(v) {
			opts.DefaultVsync = v
		} else {
			problems = append(problems, errors.NotValidf("option %s=%d, outside [%d,%d]",
				OptionDefaultVsync, v, mode.MinRefresh, mode.MaxRefresh))
		}
	}
	if v, ok := intOpt(OptionDefaultDepth); ok {
		opts.DefaultDepth = v
	}
	return opts, problems
}
