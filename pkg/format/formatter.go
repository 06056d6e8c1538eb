// Package format erases and reformats removable devices through the
// native platform tooling. Progress moves through fixed checkpoints so
// callers see the same shape of run on every platform; failures carry
// the stage that produced them through the shared sentinel errors.
package format

import (
	"context"
	"strings"
	"time"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/platform"
	"github.com/zikani/smartboot/pkg/progress"
)

// Progress checkpoints. Every platform reports exactly these values in
// this order; the work between two checkpoints differs per platform.
const (
	stepValidate   = 5
	stepClear      = 20
	stepPartition  = 40
	stepFilesystem = 60
	stepMount      = 80
	stepDone       = 100
)

// Mount resolution is polled because partition nodes and automounts
// appear asynchronously after the tools return.
const (
	defaultPollAttempts = 10
	defaultPollInterval = 500 * time.Millisecond
)

// supportedFilesystems gates the request before any destructive call.
var supportedFilesystems = map[string]map[string]bool{
	"linux": {
		media.FSFat32: true, media.FSNtfs: true, media.FSExFat: true,
		media.FSUdf: true, media.FSExt2: true, media.FSExt3: true, media.FSExt4: true,
	},
	"darwin": {
		media.FSFat32: true, media.FSExFat: true, media.FSHfs: true, media.FSApfs: true,
	},
	"windows": {
		media.FSFat32: true, media.FSNtfs: true, media.FSExFat: true, media.FSUdf: true,
	},
}

// Formatter drives one platform's formatting tools.
type Formatter struct {
	run          platform.Runner
	goos         string
	pollAttempts int
	pollInterval time.Duration
}

// New creates a Formatter for goos. Pass runtime.GOOS in production.
func New(goos string, r platform.Runner) *Formatter {
	return &Formatter{
		run:          r,
		goos:         goos,
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
	}
}

// SetMountPolling overrides the bounded polling used to resolve the
// partition node and mount point.
func (f *Formatter) SetMountPolling(attempts int, interval time.Duration) {
	if attempts > 0 {
		f.pollAttempts = attempts
	}
	if interval >= 0 {
		f.pollInterval = interval
	}
}

// Supported reports whether the filesystem can be created on this
// platform.
func (f *Formatter) Supported(fs string) bool {
	return supportedFilesystems[f.goos][fs]
}

// Format erases dev and creates one partition carrying the requested
// filesystem. On success dev.MountHandle and dev.Filesystem are updated
// in place. An unsupported filesystem fails before anything is written;
// a formatted device whose mount point never appears fails with
// errors.ErrMountResolution.
//
// The caller must have passed Strategy.CheckPrivileges before invoking
// Format: the orchestrator runs the check once per pipeline run, ahead
// of this first destructive stage, and aborts on errors.ErrPrivilege.
func (f *Formatter) Format(ctx context.Context, dev *media.Device, spec media.FormatSpec, rep *progress.Reporter) error {
	rep.Report(stepValidate, "validating request")

	if dev.Error != "" {
		return errors.Wrapf(errors.ErrDevice, "%s: %s", dev.Name, dev.Error)
	}
	if supportedFilesystems[f.goos] == nil {
		return errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", f.goos)
	}
	if !f.Supported(spec.Filesystem) {
		return errors.Wrapf(errors.ErrUnsupportedFilesystem, "%s on %s", spec.Filesystem, f.goos)
	}

	switch f.goos {
	case "linux":
		return f.formatLinux(ctx, dev, spec, rep)
	case "darwin":
		return f.formatDarwin(ctx, dev, spec, rep)
	case "windows":
		return f.formatWindows(ctx, dev, spec, rep)
	default:
		return errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", f.goos)
	}
}

// poll retries fn until it returns a non-empty value or the attempts
// are exhausted.
func (f *Formatter) poll(ctx context.Context, fn func() string) string {
	for i := 0; i < f.pollAttempts; i++ {
		if v := fn(); v != "" {
			return v
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(f.pollInterval):
		}
	}
	return ""
}

// volumeLabel normalizes the requested label for the filesystem. FAT32
// labels are limited to 11 uppercase characters.
func volumeLabel(spec media.FormatSpec) string {
	label := spec.Label
	if label == "" {
		label = "SMARTBOOT"
	}
	if spec.Filesystem == media.FSFat32 {
		label = strings.ToUpper(label)
		if len(label) > 11 {
			label = label[:11]
		}
	}
	return label
}
