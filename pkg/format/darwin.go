package format

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// diskutilFormat maps our filesystem names to diskutil's.
var diskutilFormat = map[string]string{
	media.FSFat32: "MS-DOS FAT32",
	media.FSExFat: "ExFAT",
	media.FSHfs:   "JHFS+",
	media.FSApfs:  "APFS",
}

func (f *Formatter) formatDarwin(ctx context.Context, dev *media.Device, spec media.FormatSpec, rep *progress.Reporter) error {
	device := media.DevicePath(dev.Name)
	label := volumeLabel(spec)

	rep.Report(stepClear, "unmounting disk")
	if _, err := f.run.Run(ctx, "diskutil", "unmountDisk", device); err != nil {
		return errors.Wrap(errors.ErrDevice, err.Error())
	}

	// diskutil eraseDisk lays down the partition table, the partition
	// and the filesystem in one call.
	scheme := "MBR"
	if spec.Scheme == media.SchemeGPT {
		scheme = "GPT"
	}
	rep.Report(stepPartition, "creating partition")
	rep.Report(stepFilesystem, fmt.Sprintf("creating %s filesystem", spec.Filesystem))
	if _, err := f.run.Run(ctx, "diskutil", "eraseDisk",
		diskutilFormat[spec.Filesystem], label, scheme, device); err != nil {
		return errors.Wrap(errors.ErrFormat, err.Error())
	}

	rep.Report(stepMount, "waiting for volume to mount")
	// diskutil remounts the fresh volume under /Volumes automatically,
	// but not before eraseDisk returns.
	volume := filepath.Join("/Volumes", label)
	mount := f.poll(ctx, func() string {
		if info, err := os.Stat(volume); err == nil && info.IsDir() {
			return volume
		}
		return ""
	})
	if mount == "" {
		return errors.Wrapf(errors.ErrMountResolution, "%s never mounted", volume)
	}

	dev.MountHandle = mount
	dev.Filesystem = spec.Filesystem
	rep.Report(stepDone, "format complete")
	return nil
}
