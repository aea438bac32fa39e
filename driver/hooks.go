package driver

// Hooks are the host callbacks the driver interposes on. A nil field means
// the host has nothing to call.
type Hooks struct {
	CloseScreen           func() error
	CreateScreenResources func() error
	BlockHandler          func()
}

// Wrap returns hooks that run the driver's step around the host's own:
// resources are created by the host first, the block handler flushes after
// the host's handler, and close-screen releases the driver's resources
// before handing over to the host. The host hooks are kept so that
// CloseScreen can give them back.
func (s *Screen) Wrap(orig Hooks) Hooks {
	s.wrapped = orig
	return Hooks{
		CreateScreenResources: func() error {
			if orig.CreateScreenResources != nil {
				if err := orig.CreateScreenResources(); err != nil {
					return err
				}
			}
			return s.CreateScreenResources()
		},
		BlockHandler: func() {
			if orig.BlockHandler != nil {
				orig.BlockHandler()
			}
			s.BlockHandler()
		},
		CloseScreen: func() error {
			err := s.CloseScreen()
			if err != nil {
				s.log.Error("close screen", "err", err)
			}
			if orig.CloseScreen != nil {
				return orig.CloseScreen()
			}
			return err
		},
	}
}

// Unwrapped returns the hooks the host had before Wrap.
func (s *Screen) Unwrapped() Hooks {
	return s.wrapped
}
