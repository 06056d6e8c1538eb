package image

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/platform"
)

// MinImageSize rejects files too small to be a real installer image.
const MinImageSize = 10 << 20

// Info describes a validated image.
type Info struct {
	Path string
	Size int64
	// Type is the detected image type, never media.ImageAuto.
	Type string
	// Entries is the image's file listing when a lister was available.
	Entries []string
}

// Inspector validates an image file and resolves its type. Listing the
// image contents needs an archive tool on the host; without one the
// classification falls back to the filename alone.
type Inspector struct {
	run platform.Runner
}

func NewInspector(r platform.Runner) *Inspector {
	return &Inspector{run: r}
}

// rawExtensions are accepted on top of .iso when the image is headed
// for a block-for-block write; the compressed variants are inflated on
// the fly by the deploy stage.
var rawExtensions = map[string]bool{
	".img": true,
	".dd":  true,
	".gz":  true,
	".xz":  true,
	".bz2": true,
}

// Inspect validates path and classifies the image. The requested type
// passes through untouched unless it is media.ImageAuto. raw admits
// raw and compressed disk images alongside .iso.
func (i *Inspector) Inspect(ctx context.Context, path, requested string, raw bool) (*Info, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".iso" && !(raw && rawExtensions[ext]) {
		if raw {
			return nil, errors.Wrapf(errors.ErrDevice, "%s is not a recognized disk image", path)
		}
		return nil, errors.Wrapf(errors.ErrDevice, "%s is not an .iso image", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDevice, "image %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Wrapf(errors.ErrDevice, "%s is not a regular file", path)
	}
	if info.Size() < MinImageSize {
		return nil, errors.Wrapf(errors.ErrDevice, "%s is %d bytes, below the %d byte minimum", path, info.Size(), int64(MinImageSize))
	}

	out := &Info{Path: path, Size: info.Size()}
	if ext == ".iso" {
		out.Entries = i.listEntries(ctx, path)
	}

	out.Type = requested
	if requested == "" || requested == media.ImageAuto {
		out.Type = DetectType(path, out.Entries)
	}
	return out, nil
}

// listEntries reads the image's file listing through 7z. A missing
// tool or a listing failure is not fatal; classification degrades to
// the filename.
func (i *Inspector) listEntries(ctx context.Context, path string) []string {
	if !i.run.LookPath("7z") {
		return nil
	}
	out, err := i.run.Run(ctx, "7z", "l", "-ba", "-slt", path)
	if err != nil {
		return nil
	}
	var entries []string
	for _, line := range strings.Split(out, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "Path = "); ok {
			entries = append(entries, name)
		}
	}
	return entries
}
