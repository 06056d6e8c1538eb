package format

import (
	"context"
	"fmt"
	"os"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// mkfsArgs maps a filesystem to its mkfs invocation. Quick format only
// changes behavior for NTFS, where the default is a full zeroing pass.
func mkfsArgs(spec media.FormatSpec, label, partition string) (string, []string) {
	switch spec.Filesystem {
	case media.FSFat32:
		return "mkfs.vfat", []string{"-F", "32", "-n", label, partition}
	case media.FSNtfs:
		args := []string{"-L", label}
		if spec.QuickFormat {
			args = append(args, "-f")
		}
		return "mkfs.ntfs", append(args, partition)
	case media.FSExFat:
		return "mkfs.exfat", []string{"-n", label, partition}
	case media.FSUdf:
		return "mkudffs", []string{"--media-type=hd", "--label=" + label, partition}
	case media.FSExt2:
		return "mkfs.ext2", []string{"-F", "-L", label, partition}
	case media.FSExt3:
		return "mkfs.ext3", []string{"-F", "-L", label, partition}
	default:
		return "mkfs.ext4", []string{"-F", "-L", label, partition}
	}
}

func (f *Formatter) formatLinux(ctx context.Context, dev *media.Device, spec media.FormatSpec, rep *progress.Reporter) error {
	device := media.DevicePath(dev.Name)
	partition := media.PartitionPath(dev.Name, 1)
	label := volumeLabel(spec)

	rep.Report(stepClear, "clearing existing partitions")
	// Stale mounts keep the kernel from reloading the partition table.
	// Unmount failures are expected when nothing is mounted.
	f.run.Run(ctx, "umount", partition)
	f.run.Run(ctx, "umount", device)

	table := "msdos"
	if spec.Scheme == media.SchemeGPT {
		table = "gpt"
	}
	if _, err := f.run.Run(ctx, "parted", "-s", device, "mklabel", table); err != nil {
		return errors.Wrap(errors.ErrPartition, err.Error())
	}

	rep.Report(stepPartition, "creating partition")
	fsHint := "fat32"
	if spec.Filesystem != media.FSFat32 {
		fsHint = "ext4"
	}
	if _, err := f.run.Run(ctx, "parted", "-s", "-a", "optimal", device,
		"mkpart", "primary", fsHint, "1MiB", "100%"); err != nil {
		return errors.Wrap(errors.ErrPartition, err.Error())
	}
	if spec.Scheme == media.SchemeMBR {
		if _, err := f.run.Run(ctx, "parted", "-s", device, "set", "1", "boot", "on"); err != nil {
			return errors.Wrap(errors.ErrPartition, err.Error())
		}
	}
	f.run.Run(ctx, "partprobe", device)

	// The partition node appears asynchronously after partprobe.
	node := f.poll(ctx, func() string {
		if _, err := os.Stat(partition); err == nil {
			return partition
		}
		return ""
	})
	if node == "" {
		return errors.Wrapf(errors.ErrPartition, "%s never appeared", partition)
	}

	rep.Report(stepFilesystem, fmt.Sprintf("creating %s filesystem", spec.Filesystem))
	tool, args := mkfsArgs(spec, label, partition)
	if !f.run.LookPath(tool) {
		return errors.Wrapf(errors.ErrFormat, "%s not installed", tool)
	}
	if _, err := f.run.Run(ctx, tool, args...); err != nil {
		return errors.Wrap(errors.ErrFormat, err.Error())
	}

	rep.Report(stepMount, "mounting filesystem")
	mountDir, err := os.MkdirTemp("", "smartboot-mount-")
	if err != nil {
		return errors.Wrap(errors.ErrMountResolution, err.Error())
	}
	if _, err := f.run.Run(ctx, "mount", partition, mountDir); err != nil {
		os.Remove(mountDir)
		return errors.Wrap(errors.ErrMountResolution, err.Error())
	}

	dev.MountHandle = mountDir
	dev.Filesystem = spec.Filesystem
	rep.Report(stepDone, "format complete")
	return nil
}
