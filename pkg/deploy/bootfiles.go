package deploy

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
)

// placeBootFiles finishes the deployed tree for its image type. The
// copy step reproduces the ISO layout; this step adds what the target
// needs on a plain FAT volume instead of optical media.
func placeBootFiles(imageType, root string) error {
	switch imageType {
	case media.ImageLinux:
		return placeLinuxBootFiles(root)
	case media.ImageWindows:
		return placeWindowsBootFiles(root)
	case media.ImageFreeDOS:
		return verifyFreeDOSFiles(root)
	default:
		return nil
	}
}

// placeLinuxBootFiles mirrors the isolinux configuration to the names
// syslinux reads from a USB volume.
func placeLinuxBootFiles(root string) error {
	isoCfg := findFirst(root, "isolinux.cfg")
	if isoCfg == "" {
		slog.Debug("boot_files_no_isolinux_config", "root", root)
		return nil
	}

	targets := []string{
		filepath.Join(filepath.Dir(isoCfg), "syslinux.cfg"),
		filepath.Join(root, "syslinux", "syslinux.cfg"),
	}
	for _, target := range targets {
		if fileExists(target) {
			continue
		}
		if err := copyFile(isoCfg, target); err != nil {
			return errors.Wrapf(err, "mirror %s", target)
		}
		slog.Info("boot_files_syslinux_config_placed", "source", isoCfg, "target", target)
	}
	return nil
}

// placeWindowsBootFiles promotes the Microsoft boot manager to the
// removable-media loader path when the image did not ship one there.
func placeWindowsBootFiles(root string) error {
	loader := filepath.Join(root, "EFI", "Boot", "bootx64.efi")
	if findFirst(root, "bootx64.efi") != "" {
		return nil
	}
	src := findFirst(root, "bootmgfw.efi")
	if src == "" {
		slog.Warn("boot_files_no_efi_loader", "root", root)
		return nil
	}
	if err := copyFile(src, loader); err != nil {
		return errors.Wrapf(err, "place %s", loader)
	}
	slog.Info("boot_files_efi_loader_placed", "source", src, "target", loader)
	return nil
}

// verifyFreeDOSFiles checks the DOS system files survived the copy. A
// FreeDOS volume without its kernel will never boot, so this is a hard
// failure.
func verifyFreeDOSFiles(root string) error {
	for _, required := range []string{"kernel.sys", "command.com"} {
		if findFirst(root, required) == "" {
			return errors.Wrapf(errors.ErrExtraction, "%s missing from deployed image", required)
		}
	}
	// sys.com is only needed to re-sys the volume by hand later.
	if findFirst(root, "sys.com") == "" {
		slog.Warn("boot_files_sys_com_missing", "root", root)
	}
	return nil
}

// findFirst walks root and returns the first file whose name matches
// case-insensitively.
func findFirst(root, name string) string {
	var found string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.EqualFold(d.Name(), name) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
