package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/fallback"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// bootsectEnvVar lets operators point at a bootsect.exe that is not on
// PATH, typically one extracted from installation media.
const bootsectEnvVar = "BOOTSECT_PATH"

// bootsectWellKnown is checked after the environment override.
const bootsectWellKnown = `C:\tools\bootsect.exe`

// windowsEFISources are host loaders usable as removable-media
// bootloaders, tried in order.
var windowsEFISources = []string{
	`C:\Windows\Boot\EFI\bootmgfw.efi`,
	`C:\Windows\Boot\EFI\bootmgr.efi`,
}

type windowsStrategy struct {
	run Runner
}

func (s *windowsStrategy) OS() string { return "windows" }

func (s *windowsStrategy) CheckPrivileges(ctx context.Context) error {
	// net session fails with access denied unless elevated.
	if _, err := s.run.Run(ctx, "net", "session"); err != nil {
		return errors.Wrap(errors.ErrPrivilege, "run from an elevated prompt to write to physical drives")
	}
	return nil
}

func (s *windowsStrategy) physicalDrive(dev *media.Device) string {
	return fmt.Sprintf(`\\.\PhysicalDrive%d`, dev.Number)
}

func (s *windowsStrategy) InstallBIOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	drive := strings.TrimSuffix(dev.MountHandle, `\`)

	methods := []fallback.Method{
		{
			Name:  "bootsect",
			Check: func() bool { return s.findBootsect(dev) != "" && drive != "" },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, s.findBootsect(dev), "/nt60", drive, "/force", "/mbr")
				return err
			},
		},
		{
			Name:  "syslinux",
			Check: func() bool { return s.run.LookPath("syslinux.exe") && drive != "" },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "syslinux.exe", "-maf", drive)
				return err
			},
		},
		{
			Name:  "dd generic mbr",
			Check: func() bool { return s.run.LookPath("dd") && dev.Number >= 0 },
			Run: func(ctx context.Context) error {
				scratch, err := writeMBRScratch()
				if err != nil {
					return err
				}
				defer os.Remove(scratch)
				_, err = s.run.Run(ctx, "dd", "if="+scratch, "of="+s.physicalDrive(dev),
					"bs=446", "count=1", "conv=notrunc")
				return err
			},
		},
		{
			Name:  "powershell raw write",
			Check: func() bool { return s.run.LookPath("powershell") && dev.Number >= 0 },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "powershell", "-NoProfile", "-NonInteractive",
					"-Command", rawMBRScript(s.physicalDrive(dev)))
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

func (s *windowsStrategy) InstallUEFI(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	if dev.MountHandle == "" {
		return errors.Wrap(errors.ErrBootSector, "uefi install needs an assigned drive letter")
	}
	target := filepath.Join(dev.MountHandle, "EFI", "Boot", "bootx64.efi")

	methods := []fallback.Method{
		{
			Name: "windows boot manager",
			Run: func(ctx context.Context) error {
				for _, src := range windowsEFISources {
					if fileExists(src) {
						return copyFile(src, target)
					}
				}
				return errors.New("no host boot manager found")
			},
		},
		{
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

// InstallFreeDOS marks the volume active with diskpart, looks for the
// DOS system-transfer utility and falls through to the BIOS chain.
// Only the final boot sector write can fail the stage.
func (s *windowsStrategy) InstallFreeDOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error {
	drive := strings.TrimSuffix(dev.MountHandle, `\`)

	if drive != "" && s.run.LookPath("diskpart") {
		rep.Report(freedosProgress, "marking partition active")
		if err := s.runDiskpart(ctx, "select volume "+drive+"\nactive\nexit\n"); err != nil {
			slog.Warn("freedos_activate_failed", "drive", drive, "error", err)
		}
	}

	// sys.com cannot run outside DOS; its presence is only recorded so
	// the operator can re-sys the volume from real DOS if needed.
	if p := s.findSysCom(drive); p != "" {
		slog.Info("freedos_sys_com_found", "path", p)
	}

	return s.InstallBIOS(ctx, dev, rep)
}

func (s *windowsStrategy) runDiskpart(ctx context.Context, script string) error {
	f, err := os.CreateTemp("", "smartboot-diskpart-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, err = s.run.Run(ctx, "diskpart", "/s", f.Name())
	return err
}

// findSysCom checks the conventional FreeDOS locations for sys.com.
func (s *windowsStrategy) findSysCom(drive string) string {
	candidates := []string{
		filepath.Join(drive+`\`, "freedos", "bin", "sys.com"),
		`C:\freedos\bin\sys.com`,
	}
	for _, p := range candidates {
		if drive == "" && strings.HasPrefix(p, `\`) {
			continue
		}
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// findBootsect resolves bootsect.exe: the deployed image ships its own
// copy for Windows media, then the environment override, the
// conventional tools directory, and finally PATH.
func (s *windowsStrategy) findBootsect(dev *media.Device) string {
	if dev.MountHandle != "" {
		for _, dir := range []string{"boot", "sources"} {
			p := filepath.Join(dev.MountHandle, dir, "bootsect.exe")
			if fileExists(p) {
				return p
			}
		}
	}
	if p := os.Getenv(bootsectEnvVar); p != "" && fileExists(p) {
		return p
	}
	if fileExists(bootsectWellKnown) {
		return bootsectWellKnown
	}
	if s.run.LookPath("bootsect.exe") {
		return "bootsect.exe"
	}
	return ""
}

// rawMBRScript builds a PowerShell one-liner that patches the boot code
// area of the drive's first sector in place. The sector is read, the
// first 446 bytes replaced and the full 512 written back, so the
// partition table survives and the write stays sector aligned.
func rawMBRScript(drive string) string {
	code := base64.StdEncoding.EncodeToString(GenericMBR())
	return fmt.Sprintf(
		`$c=[Convert]::FromBase64String('%s');`+
			`$f=[System.IO.File]::Open('%s',[System.IO.FileMode]::Open,[System.IO.FileAccess]::ReadWrite,[System.IO.FileShare]::ReadWrite);`+
			`$s=New-Object byte[] 512;[void]$f.Read($s,0,512);`+
			`[Array]::Copy($c,0,$s,0,$c.Length);`+
			`[void]$f.Seek(0,[System.IO.SeekOrigin]::Begin);`+
			`$f.Write($s,0,512);$f.Flush();$f.Close()`,
		code, drive)
}
