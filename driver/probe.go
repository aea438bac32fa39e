package driver

import (
	"log/slog"

	"github.com/NeowayLabs/msm/fb"
)

// At most this many device sections are looked at.
const maxSections = 4

type (
	// Identifier returns the id of the framebuffer at path.
	Identifier func(path string) (string, error)

	// Claim is the device a probe settled on.
	Claim struct {
		Section Section
		Path    string
		ID      string
	}
)

// Probe looks for an MSM framebuffer among the fb paths of sections and
// claims the first one found. identify defaults to fb.Identify.
func Probe(sections []Section, identify Identifier, log *slog.Logger) (*Claim, bool) {
	if identify == nil {
		identify = fb.Identify
	}
	if log == nil {
		log = slog.Default()
	}
	if len(sections) == 0 {
		log.Warn("no device sections for this driver")
		return nil, false
	}

	for i, sec := range sections {
		if i == maxSections {
			log.Warn("ignoring extra device sections", "count", len(sections)-maxSections)
			break
		}
		path := sec.Options.FB
		if path == "" {
			log.Warn("no framebuffer specified", "section", sec.Name)
			continue
		}
		id, err := identify(path)
		if err != nil {
			log.Warn("could not identify framebuffer", "section", sec.Name, "path", path, "err", err)
			continue
		}
		if !fb.IsMSM(id) {
			log.Warn("not an MSM framebuffer", "section", sec.Name, "path", path, "id", id)
			continue
		}
		log.Info("found framebuffer", "section", sec.Name, "path", path, "id", id)
		return &Claim{Section: sec, Path: path, ID: id}, true
	}
	return nil, false
}
