// Command msminfo probes MSM framebuffers and exercises the display driver
// outside of a display server.
package main

import (
	"fmt"
	"image"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/msm/driver"
	"github.com/NeowayLabs/msm/fb"
)

type flags struct {
	config string
	fb     string
	debug  bool
	hold   time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "msminfo",
		Short:        "Inspect and drive MSM/Qualcomm framebuffers",
		Version:      driver.Identify(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.config, "config", "c", "", "driver configuration file")
	root.PersistentFlags().StringVar(&f.fb, "fb", fb.DefaultPath, "framebuffer device, when no configuration is given")
	root.PersistentFlags().BoolVarP(&f.debug, "debug", "d", false, "enable debug messages")

	root.AddCommand(
		&cobra.Command{
			Use:   "probe",
			Short: "Find the framebuffer the driver would claim",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				claim, err := probe(f)
				if err != nil {
					return err
				}
				v, err := fb.HWVersion(claim.ID)
				if err != nil {
					v = fb.DefaultHWVersion
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\thw %#x\n",
					claim.Section.Name, claim.Path, claim.ID, v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "modes",
			Short: "Print the mode derived from the panel timings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withScreen(f, false, func(s *driver.Screen) error {
					m := s.Mode()
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.2f Hz\tdepth %d\n",
						m, m.VRefresh(), s.Format().Depth)
					return nil
				})
			},
		},
		newFillCmd(f),
		newDrawCmd(f),
	)
	return root
}

func newFillCmd(f *flags) *cobra.Command {
	var rgb uint32
	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill the screen with a color",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withScreen(f, true, func(s *driver.Screen) error {
				r := (rgb >> 16 & 0xff) * 0x101
				g := (rgb >> 8 & 0xff) * 0x101
				b := (rgb & 0xff) * 0x101
				if err := s.Fill(s.ScreenPixmap(), s.Format().Pixel(r, g, b)); err != nil {
					return err
				}
				time.Sleep(f.hold)
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&rgb, "color", 0x0000ff, "color as 0xRRGGBB")
	cmd.Flags().DurationVar(&f.hold, "hold", 5*time.Second, "how long to keep the picture up")
	return cmd
}

func newDrawCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw IMAGE",
		Short: "Draw a JPEG or PNG picture at the top left corner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := decode(args[0])
			if err != nil {
				return err
			}
			return withScreen(f, true, func(s *driver.Screen) error {
				if err := draw(s, img); err != nil {
					return err
				}
				time.Sleep(f.hold)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&f.hold, "hold", 10*time.Second, "how long to keep the picture up")
	return cmd
}

func decode(path string) (image.Image, error) {
	reader, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer reader.Close()
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, errors.Annotatef(err, "decoding %s", path)
	}
	return img, nil
}

func draw(s *driver.Screen, img image.Image) error {
	p := s.ScreenPixmap()
	mem, err := s.PrepareAccess(p)
	if err != nil {
		return err
	}
	format := s.Format()
	bpp := format.BytesPerPixel()
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy() && y < p.Height; y++ {
		row := mem[y*int(p.Pitch):]
		for x := 0; x < bounds.Dx() && x < p.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			pixel := format.Pixel(r, g, b)
			for i := 0; i < bpp; i++ {
				row[x*bpp+i] = byte(pixel >> (8 * i))
			}
		}
	}
	return nil
}

func probe(f *flags) (*driver.Claim, error) {
	var sections []driver.Section
	if f.config != "" {
		var err error
		sections, err = driver.LoadConfig(f.config)
		if err != nil {
			return nil, err
		}
		for _, sec := range sections {
			for _, p := range sec.Problems {
				fmt.Fprintf(os.Stderr, "warning: section %s: %s\n", sec.Name, p)
			}
		}
	} else {
		opts := driver.DefaultOptions()
		opts.FB = f.fb
		opts.Debug = f.debug
		sections = []driver.Section{{Name: "default", Options: opts}}
	}

	claim, ok := driver.Probe(sections, nil, nil)
	if !ok {
		return nil, errors.NotFoundf("MSM framebuffer")
	}
	return claim, nil
}

// withScreen brings a screen up to pre-init, or through screen-init and
// resource creation when active is set, runs fn, and closes it down.
func withScreen(f *flags, active bool, fn func(*driver.Screen) error) (err error) {
	claim, err := probe(f)
	if err != nil {
		return err
	}
	s := driver.NewScreen(0, claim, driver.Devices{}, driver.Logging{Debug: f.debug})
	hooks := driver.Hooks{CloseScreen: s.CloseScreen}
	defer func() {
		if cerr := hooks.CloseScreen(); err == nil {
			err = cerr
		}
	}()

	if err := s.PreInit(s.Options()); err != nil {
		return err
	}
	if active {
		wrapped, err := s.ScreenInit(driver.Hooks{})
		if err != nil {
			return err
		}
		hooks = wrapped
		if err := hooks.CreateScreenResources(); err != nil {
			return err
		}
		defer hooks.BlockHandler()
	}
	return fn(s)
}
