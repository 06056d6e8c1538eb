// Package media holds the shared data model of the boot media pipeline:
// the target device, the formatting and boot intents, and the
// consistency rules between them.
package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Filesystem names accepted by FormatSpec. Availability is platform
// gated by the formatter.
const (
	FSFat32 = "FAT32"
	FSNtfs  = "NTFS"
	FSExFat = "exFAT"
	FSUdf   = "UDF"
	FSExt2  = "ext2"
	FSExt3  = "ext3"
	FSExt4  = "ext4"
	FSHfs   = "HFS+"
	FSApfs  = "APFS"
)

// Partition schemes.
const (
	SchemeMBR = "MBR"
	SchemeGPT = "GPT"
)

// Boot types.
const (
	BootBIOS    = "BIOS"
	BootUEFI    = "UEFI"
	BootDual    = "Dual"
	BootFreeDOS = "FreeDOS"
)

// Image type hints handed to the deployer.
const (
	ImageWindows = "windows"
	ImageLinux   = "linux"
	ImageFreeDOS = "freedos"
	ImageGeneric = "generic"
	ImageAuto    = "auto"
)

// Device identifies one removable block device. It is produced by
// device enumeration and owned by a single pipeline run. All fields are
// immutable except MountHandle, which the formatter updates in place
// once formatting completes.
type Device struct {
	// Name is the platform device identifier: "sdb" on Linux, "disk2"
	// on macOS, a PhysicalDrive caption on Windows.
	Name string

	// Number is the Windows disk number; -1 on other platforms.
	Number int

	// Label is the human-readable model/label string.
	Label string

	// Size is the device capacity in bytes.
	Size int64

	// Filesystem is the filesystem currently on the device, if known.
	Filesystem string

	// MountHandle is the current mount point (unix) or drive letter
	// (Windows). Updated by the formatter after a successful format.
	MountHandle string

	// Error is set by enumeration when the device is unusable. A device
	// carrying a non-empty Error short-circuits the pipeline before any
	// destructive call.
	Error string
}

// FormatSpec is the formatting intent for one run. Immutable.
type FormatSpec struct {
	Filesystem  string
	Label       string
	Scheme      string
	QuickFormat bool
}

// BootSpec is the boot installation intent for one run. Immutable.
// Scheme must agree with the FormatSpec scheme; Validate enforces the
// cross-spec rules before the pipeline starts.
type BootSpec struct {
	Type      string
	ImageType string
	Scheme    string
}

// Validate enforces the consistency invariants between the two specs:
// the schemes must agree, UEFI requires GPT and FreeDOS requires MBR.
// It runs before the pipeline, never inside it.
func Validate(f FormatSpec, b BootSpec) error {
	if f.Scheme != SchemeMBR && f.Scheme != SchemeGPT {
		return fmt.Errorf("unknown partition scheme %q", f.Scheme)
	}
	if b.Scheme != f.Scheme {
		return fmt.Errorf("boot spec scheme %q disagrees with format spec scheme %q", b.Scheme, f.Scheme)
	}
	switch b.Type {
	case BootBIOS, BootDual:
	case BootUEFI:
		if b.Scheme != SchemeGPT {
			return fmt.Errorf("UEFI boot requires the GPT partition scheme, got %q", b.Scheme)
		}
	case BootFreeDOS:
		if b.Scheme != SchemeMBR {
			return fmt.Errorf("FreeDOS boot requires the MBR partition scheme, got %q", b.Scheme)
		}
	default:
		return fmt.Errorf("unknown boot type %q", b.Type)
	}
	return nil
}

// DevicePath normalizes a unix device name to its /dev path. A name
// that already is a path passes through untouched.
func DevicePath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/dev/" + name
}

// PartitionPath returns the /dev path of partition n on the device,
// following the platform naming conventions: /dev/sdb1 for plain
// devices, /dev/nvme0n1p1 for devices whose name ends in a digit, and
// /dev/disk2s1 for macOS disks.
func PartitionPath(name string, n int) string {
	dev := DevicePath(name)
	base := dev[strings.LastIndexByte(dev, '/')+1:]
	suffix := strconv.Itoa(n)
	if strings.HasPrefix(base, "disk") {
		return dev + "s" + suffix
	}
	if last := base[len(base)-1]; last >= '0' && last <= '9' {
		return dev + "p" + suffix
	}
	return dev + suffix
}
