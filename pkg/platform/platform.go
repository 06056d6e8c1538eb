// Package platform implements the per-OS boot installation strategies.
// Each strategy wraps the native tools of its host (syslinux, grub,
// bootsect.exe, diskutil) behind one interface; every operation is a
// fallback chain so a missing tool degrades to the next method instead
// of failing the run.
package platform

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// Progress checkpoints inside the boot installation stage. BIOS and
// UEFI each own one checkpoint so a dual install moves the bar twice;
// a FreeDOS install reports its activation step before the BIOS chain.
const (
	freedosProgress = 20
	biosProgress    = 40
	uefiProgress    = 80
)

// Strategy installs boot code on an already formatted device. The
// device's MountHandle must be set before either install runs.
type Strategy interface {
	// OS names the platform the strategy drives.
	OS() string

	// CheckPrivileges verifies the process can perform destructive
	// device I/O. Returns an error wrapping errors.ErrPrivilege when
	// it cannot; that error is fatal and never retried.
	CheckPrivileges(ctx context.Context) error

	// InstallBIOS writes a BIOS/legacy boot sector to the device.
	InstallBIOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error

	// InstallUEFI places a UEFI bootloader at EFI/Boot on the device's
	// mounted filesystem.
	InstallUEFI(ctx context.Context, dev *media.Device, rep *progress.Reporter) error

	// InstallFreeDOS marks the first partition bootable and then
	// writes a DOS-compatible boot sector through the BIOS chain.
	InstallFreeDOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error
}

// New selects the strategy for goos. Pass runtime.GOOS in production;
// tests pass other values to exercise foreign strategies. Unknown
// platforms get a strategy whose every operation fails with
// errors.ErrUnsupportedPlatform.
func New(goos string, r Runner) Strategy {
	switch goos {
	case "linux":
		return &linuxStrategy{run: r}
	case "darwin":
		return &darwinStrategy{run: r}
	case "windows":
		return &windowsStrategy{run: r}
	default:
		return &unsupportedStrategy{goos: goos}
	}
}

// Host returns the strategy for the current OS.
func Host(r Runner) Strategy {
	return New(runtime.GOOS, r)
}

// checkRootPrivileges is the unix privilege probe shared by the linux
// and darwin strategies.
func checkRootPrivileges(ctx context.Context, r Runner) error {
	out, err := r.Run(ctx, "id", "-u")
	if err != nil {
		return errors.Wrap(errors.ErrPrivilege, "could not determine effective uid")
	}
	if strings.TrimSpace(out) != "0" {
		return errors.Wrap(errors.ErrPrivilege, "run as root to write to block devices")
	}
	return nil
}

// writeMBRScratch writes the generic MBR bootstrap to a scratch file
// for dd-style tools. The caller removes it.
func writeMBRScratch() (string, error) {
	f, err := os.CreateTemp("", "smartboot-mbr-*.bin")
	if err != nil {
		return "", errors.Wrap(err, "create mbr scratch file")
	}
	if _, err := f.Write(GenericMBR()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, "write mbr scratch file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "close mbr scratch file")
	}
	return f.Name(), nil
}

// copyFile copies src to dst, creating dst's directory as needed.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(dst))
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return out.Sync()
}

// fileExists reports whether path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
