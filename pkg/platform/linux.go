package platform

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/fallback"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// syslinuxMBRPaths is where distributions ship the syslinux mbr.bin.
var syslinuxMBRPaths = []string{
	"/usr/lib/syslinux/mbr/mbr.bin",
	"/usr/lib/syslinux/bios/mbr.bin",
	"/usr/share/syslinux/mbr.bin",
	"/usr/lib/SYSLINUX/mbr.bin",
}

// efiSourcePaths are bootloaders commonly present on a Linux host that
// can serve as a removable-media fallback loader.
var efiSourcePaths = []string{
	"/usr/lib/systemd/boot/efi/systemd-bootx64.efi",
	"/usr/lib/grub/x86_64-efi-signed/grubx64.efi.signed",
	"/usr/lib/shim/shimx64.efi",
}

// efiScanDirs are searched for any bootable .efi as the last resort.
var efiScanDirs = []string{
	"/boot/efi",
	"/usr/share/efi",
	"/usr/lib/efi",
}

type linuxStrategy struct {
	run Runner
}

func (s *linuxStrategy) OS() string { return "linux" }

func (s *linuxStrategy) CheckPrivileges(ctx context.Context) error {
	return checkRootPrivileges(ctx, s.run)
}

func (s *linuxStrategy) InstallBIOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	device := media.DevicePath(dev.Name)
	partition := media.PartitionPath(dev.Name, 1)

	methods := []fallback.Method{
		{
			Name:  "syslinux",
			Check: func() bool { return s.run.LookPath("syslinux") },
			Run: func(ctx context.Context) error {
				if _, err := s.run.Run(ctx, "syslinux", "--install", partition); err != nil {
					return err
				}
				// syslinux only writes the volume boot record; the MBR
				// code comes from its companion blob when present.
				for _, mbr := range syslinuxMBRPaths {
					if !fileExists(mbr) {
						continue
					}
					_, err := s.run.Run(ctx, "dd", "if="+mbr, "of="+device,
						"bs=440", "count=1", "conv=notrunc")
					return err
				}
				return nil
			},
		},
		{
			Name: "extlinux",
			Check: func() bool {
				return s.run.LookPath("extlinux") && dev.MountHandle != ""
			},
			Run: func(ctx context.Context) error {
				dir := filepath.Join(dev.MountHandle, "boot", "syslinux")
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return errors.Wrap(err, "create extlinux directory")
				}
				_, err := s.run.Run(ctx, "extlinux", "--install", dir)
				return err
			},
		},
		{
			Name:  "ms-sys",
			Check: func() bool { return s.run.LookPath("ms-sys") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "ms-sys", "-s", device)
				return err
			},
		},
		{
			Name:  "generic mbr",
			Check: func() bool { return s.run.LookPath("dd") },
			Run: func(ctx context.Context) error {
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
			Name:  "activate partition",
			Check: func() bool { return s.run.LookPath("sfdisk") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "sfdisk", "--activate", device, "1")
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
	return nil
}

// InstallFreeDOS marks the first partition bootable, then writes the
// boot sector through the regular BIOS chain. DOS firmware refuses to
// boot a partition without the active flag, so the flag comes first;
// failing to set it is non-fatal because the formatter usually has
// already.
func (s *linuxStrategy) InstallFreeDOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	device := media.DevicePath(dev.Name)

	activate := []fallback.Method{
		{
			Name:  "parted boot flag",
			Check: func() bool { return s.run.LookPath("parted") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "parted", "-s", device, "set", "1", "boot", "on")
				return err
			},
		},
		{
			Name:  "sfdisk activate",
			Check: func() bool { return s.run.LookPath("sfdisk") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "sfdisk", "--activate", device, "1")
				return err
			},
		},
	}
	if _, err := fallback.Execute(ctx, rep, freedosProgress, "activate dos partition", activate); err != nil {
		if errors.Is(err, errors.ErrCancelled) {
			return err
		}
		slog.Warn("freedos_activate_failed", "device", device, "error", err)
	}

	return s.InstallBIOS(ctx, dev, rep)
}

func (s *linuxStrategy) InstallUEFI(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	if dev.MountHandle == "" {
		return errors.Wrap(errors.ErrBootSector, "uefi install needs a mounted filesystem")
	}
	device := media.DevicePath(dev.Name)
	target := filepath.Join(dev.MountHandle, "EFI", "Boot", "bootx64.efi")

	methods := []fallback.Method{
		{
			Name:  "grub-install",
			Check: func() bool { return s.run.LookPath("grub-install") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "grub-install",
					"--target=x86_64-efi",
					"--efi-directory="+dev.MountHandle,
					"--boot-directory="+filepath.Join(dev.MountHandle, "boot"),
					"--removable", "--no-nvram", device)
				return err
			},
		},
		{
			Name: "host bootloader copy",
			Run: func(ctx context.Context) error {
				for _, src := range efiSourcePaths {
					if fileExists(src) {
						return copyFile(src, target)
					}
				}
				return errors.New("no host bootloader found")
			},
		},
		{
			Name: "efi directory scan",
			Run: func(ctx context.Context) error {
				src := scanForEFI(efiScanDirs)
				if src == "" {
					return errors.New("no .efi binary found on host")
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

// scanForEFI walks dirs and returns the first bootx64.efi it finds, or
// failing that the first .efi of any name.
func scanForEFI(dirs []string) string {
	var anyEFI string
	for _, dir := range dirs {
		filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			switch {
			case strings.EqualFold(d.Name(), "bootx64.efi"):
				anyEFI = path
				return filepath.SkipAll
			case anyEFI == "" && hasSuffixFold(d.Name(), ".efi"):
				anyEFI = path
			}
			return nil
		})
		if anyEFI != "" && strings.EqualFold(filepath.Base(anyEFI), "bootx64.efi") {
			break
		}
	}
	return anyEFI
}
