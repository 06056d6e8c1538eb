// Package deploy writes image contents to a formatted device. Plain
// installer images are extracted into a staging directory and copied
// file by file; generic images are streamed raw onto the device with
// optional decompression on the way through.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/image"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/platform"
	"github.com/zikani/smartboot/pkg/progress"
	"github.com/zikani/smartboot/pkg/security"
)

// Deployment stage checkpoints. The file copy interpolates between
// stepCopyStart and stepCopyEnd by bytes moved.
const (
	stepPrepare   = 5
	stepExtract   = 10
	stepCopyStart = 15
	stepCopyEnd   = 90
	stepBootFiles = 95
	stepDeployed  = 100
)

// Deployer writes one image to one device.
type Deployer struct {
	run       platform.Runner
	validator *security.Validator
	goos      string

	// WorkDir hosts staging directories; empty means the system temp dir.
	WorkDir string

	// ChunkSize is the raw write chunk; values below MinChunkSize are
	// raised to it.
	ChunkSize int
}

// NewDeployer creates a Deployer for goos. Pass runtime.GOOS in
// production.
func NewDeployer(goos string, r platform.Runner, v *security.Validator) *Deployer {
	return &Deployer{run: r, validator: v, goos: goos, ChunkSize: DefaultChunkSize}
}

// Deploy writes info's contents onto dev. Installer images need
// dev.MountHandle set by a prior format; generic images and raw
// requests are written block-for-block and invalidate any mount
// handle. The raw flag is how a caller forces dd-style duplication of
// an installer ISO.
func (d *Deployer) Deploy(ctx context.Context, dev *media.Device, info *image.Info, raw bool, rep *progress.Reporter) error {
	slog.Info("deploy_start", "device", dev.Name, "image", info.Path, "type", info.Type, "raw", raw)
	if raw || info.Type == media.ImageGeneric {
		return d.deployRaw(ctx, dev, info, rep)
	}
	return d.deployTree(ctx, dev, info, rep)
}

// deployRaw streams the image byte-for-byte onto the device.
func (d *Deployer) deployRaw(ctx context.Context, dev *media.Device, info *image.Info, rep *progress.Reporter) error {
	rep.Report(stepPrepare, "preparing device for raw write")
	d.unmountForRaw(ctx, dev)

	target, err := d.rawTarget(dev)
	if err != nil {
		return err
	}

	src, err := openImageStream(ctx, info.Path)
	if err != nil {
		return errors.Wrap(errors.ErrExtraction, err.Error())
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(errors.ErrDevice, "open %s: %v", target, err)
	}
	defer out.Close()

	onChunk := func(written int64) {
		// Progress follows the compressed input position when the
		// stream can report it, written bytes otherwise.
		consumed := written
		if src.consumed != nil {
			consumed = *src.consumed
		}
		pct := stepCopyStart
		if info.Size > 0 {
			pct += int(consumed * int64(stepCopyEnd-stepCopyStart) / info.Size)
		}
		rep.Report(pct, fmt.Sprintf("writing image (%d MiB)", written>>20))
	}

	written, err := writeChunks(ctx, out, src, d.ChunkSize, onChunk)
	if err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return errors.Wrap(errors.ErrDevice, err.Error())
	}

	// The raw image replaced the filesystem the formatter created.
	dev.MountHandle = ""
	dev.Filesystem = ""

	slog.Info("deploy_raw_complete", "device", dev.Name, "bytes", written)
	rep.Report(stepDeployed, "raw image written")
	return nil
}

// deployTree extracts the image and copies the tree onto the mounted
// filesystem. The staging directory is removed on every exit path.
func (d *Deployer) deployTree(ctx context.Context, dev *media.Device, info *image.Info, rep *progress.Reporter) error {
	if dev.MountHandle == "" {
		return errors.Wrapf(errors.ErrDevice, "%s has no mounted filesystem to deploy to", dev.Name)
	}

	rep.Report(stepPrepare, "staging image contents")
	s := &stager{run: d.run, validator: d.validator, workDir: d.WorkDir, goos: d.goos}
	staging, err := s.stage(ctx, info.Path, info.Size, rep)
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	total := treeSize(staging)
	var copied int64
	err = copyTree(ctx, staging, dev.MountHandle, func(size int64) {
		copied += size
		pct := stepCopyStart
		if total > 0 {
			pct += int(copied * int64(stepCopyEnd-stepCopyStart) / total)
		}
		rep.Report(pct, fmt.Sprintf("copying files (%d of %d MiB)", copied>>20, total>>20))
	})
	if err != nil {
		if errors.Is(err, errors.ErrCancelled) {
			return err
		}
		return errors.Wrap(errors.ErrExtraction, err.Error())
	}

	rep.Report(stepBootFiles, "placing boot files")
	if err := placeBootFiles(info.Type, dev.MountHandle); err != nil {
		return err
	}

	d.flush(ctx)
	slog.Info("deploy_tree_complete", "device", dev.Name, "bytes", copied)
	rep.Report(stepDeployed, "image deployed")
	return nil
}

// rawTarget is the writable raw device path.
func (d *Deployer) rawTarget(dev *media.Device) (string, error) {
	if d.goos == "windows" {
		if dev.Number < 0 {
			return "", errors.Wrapf(errors.ErrDevice, "%s has no disk number", dev.Name)
		}
		return fmt.Sprintf(`\\.\PhysicalDrive%d`, dev.Number), nil
	}
	return media.DevicePath(dev.Name), nil
}

// unmountForRaw releases any mounted filesystem before the raw write
// clobbers it. Failures are ignored; the device may not be mounted.
func (d *Deployer) unmountForRaw(ctx context.Context, dev *media.Device) {
	switch d.goos {
	case "darwin":
		d.run.Run(ctx, "diskutil", "unmountDisk", media.DevicePath(dev.Name))
	case "linux":
		if dev.MountHandle != "" {
			d.run.Run(ctx, "umount", dev.MountHandle)
		}
		d.run.Run(ctx, "umount", media.PartitionPath(dev.Name, 1))
	}
}

// flush asks the OS to push page cache to the device before the run is
// declared done.
func (d *Deployer) flush(ctx context.Context) {
	if d.goos != "windows" && d.run.LookPath("sync") {
		d.run.Run(ctx, "sync")
	}
}

// treeSize sums regular file sizes under root.
func treeSize(root string) int64 {
	var total int64
	filepath.WalkDir(root, func(path string, dent os.DirEntry, err error) error {
		if err != nil || dent.IsDir() || !dent.Type().IsRegular() {
			return nil
		}
		if info, err := dent.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
