package format

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// diskpartFS maps our filesystem names to diskpart's format argument.
var diskpartFS = map[string]string{
	media.FSFat32: "fat32",
	media.FSNtfs:  "ntfs",
	media.FSExFat: "exfat",
	media.FSUdf:   "udf",
}

// diskpartScript builds the script for one full erase-and-format pass.
// diskpart is used for every filesystem because Format-Volume refuses
// FAT32 volumes over 32GB while diskpart does not.
func diskpartScript(diskNumber int, spec media.FormatSpec, label string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "select disk %d\n", diskNumber)
	b.WriteString("clean\n")
	if spec.Scheme == media.SchemeGPT {
		b.WriteString("convert gpt\n")
	} else {
		b.WriteString("convert mbr\n")
	}
	b.WriteString("create partition primary\n")
	if spec.Scheme == media.SchemeMBR {
		b.WriteString("active\n")
	}
	fmt.Fprintf(&b, "format fs=%s label=%q", diskpartFS[spec.Filesystem], label)
	if spec.QuickFormat {
		b.WriteString(" quick")
	}
	b.WriteString("\nassign\n")
	return b.String()
}

func (f *Formatter) formatWindows(ctx context.Context, dev *media.Device, spec media.FormatSpec, rep *progress.Reporter) error {
	if dev.Number < 0 {
		return errors.Wrapf(errors.ErrDevice, "%s has no disk number", dev.Name)
	}
	label := volumeLabel(spec)

	rep.Report(stepClear, "clearing existing partitions")
	rep.Report(stepPartition, "creating partition")
	rep.Report(stepFilesystem, fmt.Sprintf("creating %s filesystem", spec.Filesystem))

	script, err := os.CreateTemp("", "smartboot-diskpart-*.txt")
	if err != nil {
		return errors.Wrap(errors.ErrFormat, err.Error())
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(diskpartScript(dev.Number, spec, label)); err != nil {
		script.Close()
		return errors.Wrap(errors.ErrFormat, err.Error())
	}
	if err := script.Close(); err != nil {
		return errors.Wrap(errors.ErrFormat, err.Error())
	}

	if _, err := f.run.Run(ctx, "diskpart", "/s", script.Name()); err != nil {
		return errors.Wrap(errors.ErrFormat, err.Error())
	}

	rep.Report(stepMount, "resolving drive letter")
	letter := f.poll(ctx, func() string {
		out, err := f.run.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
			fmt.Sprintf("(Get-Partition -DiskNumber %d | Get-Volume).DriveLetter", dev.Number))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	})
	if letter == "" {
		return errors.Wrapf(errors.ErrMountResolution, "no drive letter assigned to disk %d", dev.Number)
	}

	dev.MountHandle = letter + ":"
	dev.Filesystem = spec.Filesystem
	rep.Report(stepDone, "format complete")
	return nil
}
