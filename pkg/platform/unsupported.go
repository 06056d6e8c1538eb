package platform

import (
	"context"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// unsupportedStrategy stands in on platforms without native tooling so
// callers always get a Strategy and a uniform error.
type unsupportedStrategy struct {
	goos string
}

func (s *unsupportedStrategy) OS() string { return s.goos }

func (s *unsupportedStrategy) CheckPrivileges(context.Context) error {
	return errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", s.goos)
}

func (s *unsupportedStrategy) InstallBIOS(context.Context, *media.Device, *progress.Reporter) error {
	return errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", s.goos)
}

func (s *unsupportedStrategy) InstallUEFI(context.Context, *media.Device, *progress.Reporter) error {
	return errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", s.goos)
}

func (s *unsupportedStrategy) InstallFreeDOS(context.Context, *media.Device, *progress.Reporter) error {
	return errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", s.goos)
}
