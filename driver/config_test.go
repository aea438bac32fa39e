package driver

import (
	"testing"

	"github.com/juju/errors"
)

const testConfig = `
[Device "msm"]
Driver = freedreno
fb = /dev/fb1
noaccel = yes
SWCURSOR = off
DefaultVsync = 50
debug = true

[Device "vesa"]
Driver = fbdev
fb = /dev/fb0

[Device "broken"]
driver = FreeDreno
fb = /dev/fb2
NoAccel = maybe
DefaultVsync = 500
DefaultDepth = deep
`

func TestLoadConfig(t *testing.T) {
	sections, err := LoadConfig([]byte(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections but got %d", len(sections))
	}

	msm := sections[0]
	if len(msm.Problems) != 0 {
		t.Errorf("unexpected problems %v", msm.Problems)
	}
	expected := Options{FB: "/dev/fb1", NoAccel: true, DefaultVsync: 50, Debug: true}
	if msm.Options != expected {
		t.Errorf("expected %+v but got %+v", expected, msm.Options)
	}

	broken := sections[1]
	if broken.Options.FB != "/dev/fb2" {
		t.Errorf("unexpected fb %q", broken.Options.FB)
	}
	if broken.Options.NoAccel || broken.Options.DefaultVsync != 60 || broken.Options.DefaultDepth != 0 {
		t.Errorf("invalid values must keep their defaults: %+v", broken.Options)
	}
	if len(broken.Problems) != 3 {
		t.Fatalf("expected 3 problems but got %v", broken.Problems)
	}
	for _, p := range broken.Problems {
		if !errors.Is(p, errors.NotValid) {
			t.Errorf("expected NotValid but got %v", p)
		}
	}
}

func TestLoadConfigMultipleSources(t *testing.T) {
	sections, err := LoadConfig([]byte("[a]\ndriver=freedreno\nfb=/dev/fb0\n"),
		[]byte("[b]\ndriver=freedreno\nfb=/dev/fb1\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 || sections[1].Options.FB != "/dev/fb1" {
		t.Errorf("unexpected sections %+v", sections)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.conf"); err == nil {
		t.Error("expected an error")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.DefaultVsync != 60 || opts.NoAccel || opts.SWCursor || opts.Debug {
		t.Errorf("unexpected defaults %+v", opts)
	}
}
