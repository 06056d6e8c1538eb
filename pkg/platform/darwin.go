package platform

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/fallback"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

type darwinStrategy struct {
	run Runner
}

func (s *darwinStrategy) OS() string { return "darwin" }

func (s *darwinStrategy) CheckPrivileges(ctx context.Context) error {
	return checkRootPrivileges(ctx, s.run)
}

// InstallFreeDOS has no extra work on macOS: fdisk -u -y -f already
// activates the partition it writes, so the BIOS chain covers DOS too.
func (s *darwinStrategy) InstallFreeDOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	return s.InstallBIOS(ctx, dev, rep)
}

func (s *darwinStrategy) InstallBIOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	device := media.DevicePath(dev.Name)

	// diskutil holds the device open while the volume is mounted; the
	// whole disk has to be released before raw writes can land.
	unmount := func(ctx context.Context) error {
		_, err := s.run.Run(ctx, "diskutil", "unmountDisk", device)
		return err
	}

	methods := []fallback.Method{
		{
			Name:  "dd generic mbr",
			Check: func() bool { return s.run.LookPath("dd") },
			Run: func(ctx context.Context) error {
				if err := unmount(ctx); err != nil {
					return err
				}
				scratch, err := writeMBRScratch()
				if err != nil {
					return err
				}
				defer os.Remove(scratch)
				_, err = s.run.Run(ctx, "dd", "if="+scratch, "of="+device,
					"bs=446", "count=1", "conv=notrunc")
				return err
			},
		},
		{
			Name:  "fdisk bootstrap update",
			Check: func() bool { return s.run.LookPath("fdisk") },
			Run: func(ctx context.Context) error {
				if err := unmount(ctx); err != nil {
					return err
				}
				scratch, err := writeMBRScratch()
				if err != nil {
					return err
				}
				defer os.Remove(scratch)
				_, err = s.run.Run(ctx, "fdisk", "-u", "-y", "-f", scratch, device)
				return err
			},
		},
	}

	if _, err := fallback.Execute(ctx, rep, biosProgress, "bios boot sector", methods); err != nil {
		if errors.Is(err, errors.ErrCancelled) {
			return err
		}
		return errors.Wrap(errors.ErrBootSector, err.Error())
	}

	// Deployment continues after the boot sector; bring the volume back.
	if _, err := s.run.Run(ctx, "diskutil", "mountDisk", device); err != nil {
		return errors.Wrap(err, "remount after boot sector write")
	}
	return nil
}

func (s *darwinStrategy) InstallUEFI(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	if dev.MountHandle == "" {
		return errors.Wrap(errors.ErrBootSector, "uefi install needs a mounted volume")
	}
	target := filepath.Join(dev.MountHandle, "EFI", "Boot", "bootx64.efi")

	methods := []fallback.Method{
		{
			// The deployer usually places the loader while copying the
			// image; nothing to do when it is already in place.
			Name: "deployed loader present",
			Run: func(ctx context.Context) error {
				if fileExists(target) {
					return nil
				}
				return errors.New("EFI/Boot/bootx64.efi not present")
			},
		},
		{
			Name: "volume efi scan",
			Run: func(ctx context.Context) error {
				src := scanVolumeForEFI(dev.MountHandle)
				if src == "" {
					return errors.New("no .efi binary found on volume")
				}
				return copyFile(src, target)
			},
		},
	}

	if _, err := fallback.Execute(ctx, rep, uefiProgress, "uefi bootloader", methods); err != nil {
		if errors.Is(err, errors.ErrCancelled) {
			return err
		}
		return errors.Wrap(errors.ErrBootSector, err.Error())
	}
	return nil
}

// scanVolumeForEFI finds a loader already deployed somewhere on the
// volume that can be promoted to the removable-media path.
func scanVolumeForEFI(root string) string {
	var found string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.EqualFold(name, "bootmgfw.efi") || strings.EqualFold(name, "grubx64.efi") ||
			(found == "" && hasSuffixFold(name, ".efi")) {
			found = path
		}
		if strings.EqualFold(name, "bootmgfw.efi") {
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
