// Package image validates ISO images and classifies what kind of
// operating system they carry, which decides how the deployer lays the
// image out on the target device.
package image

import (
	"path/filepath"
	"strings"

	"github.com/zikani/smartboot/pkg/media"
)

// Filename keywords, checked in this order. The windows list runs
// first so "winserver" never classifies as something else on the
// strength of a weaker match.
var (
	windowsKeywords = []string{"windows", "win", "microsoft", "server"}
	linuxKeywords   = []string{"ubuntu", "debian", "fedora", "centos", "rhel", "suse", "arch", "manjaro", "linux", "mint"}
	dosKeywords     = []string{"freedos", "msdos", "dos"}
)

// Content markers inside the image, used when the filename is mute.
// Paths are matched as lowercase suffix-insensitive fragments.
var (
	windowsMarkers = []string{"sources/install.wim", "sources/install.esd", "bootmgr"}
	linuxMarkers   = []string{"casper/", "isolinux/", "live/", "boot/grub/"}
	dosMarkers     = []string{"kernel.sys", "command.com"}
)

// DetectType classifies an image from its filename and its file
// listing. It is deterministic and touches nothing on disk: the same
// inputs always produce the same answer. Filename keywords win over
// content markers; an image matching neither is generic.
func DetectType(filename string, entries []string) string {
	name := strings.ToLower(filepath.Base(filename))

	if matchKeyword(name, windowsKeywords) {
		return media.ImageWindows
	}
	if matchKeyword(name, linuxKeywords) {
		return media.ImageLinux
	}
	if matchKeyword(name, dosKeywords) {
		return media.ImageFreeDOS
	}

	if matchMarker(entries, windowsMarkers) {
		return media.ImageWindows
	}
	// DOS before linux: a FreeDOS live CD ships isolinux/ too, but
	// kernel.sys is unambiguous.
	if matchMarker(entries, dosMarkers) {
		return media.ImageFreeDOS
	}
	if matchMarker(entries, linuxMarkers) {
		return media.ImageLinux
	}

	return media.ImageGeneric
}

func matchKeyword(name string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func matchMarker(entries, markers []string) bool {
	for _, entry := range entries {
		e := strings.ToLower(strings.ReplaceAll(entry, "\\", "/"))
		for _, m := range markers {
			if strings.HasSuffix(m, "/") {
				if strings.HasPrefix(e, m) || strings.Contains(e, "/"+m) {
					return true
				}
				continue
			}
			if e == m || strings.HasSuffix(e, "/"+m) {
				return true
			}
		}
	}
	return false
}
