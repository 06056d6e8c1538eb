// Package device enumerates removable block devices through the native
// platform tools. Only removable media is ever returned; fixed disks
// never reach the pipeline.
package device

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/platform"
)

// Lister enumerates removable devices for one platform.
type Lister struct {
	run  platform.Runner
	goos string
}

// NewLister creates a Lister for goos. Pass runtime.GOOS in production.
func NewLister(goos string, r platform.Runner) *Lister {
	return &Lister{run: r, goos: goos}
}

// List returns every removable device currently attached. A device the
// tools could see but not fully describe is returned with its Error
// field set rather than dropped, so the operator learns it exists.
func (l *Lister) List(ctx context.Context) ([]media.Device, error) {
	switch l.goos {
	case "linux":
		return l.listLinux(ctx)
	case "darwin":
		return l.listDarwin(ctx)
	case "windows":
		return l.listWindows(ctx)
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedPlatform, "not supported on %s", l.goos)
	}
}

// lsblk JSON shapes. Sizes are bytes thanks to -b.
type lsblkOutput struct {
	Blockdevices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Name       string        `json:"name"`
	Size       int64         `json:"size"`
	Model      string        `json:"model"`
	Fstype     string        `json:"fstype"`
	Mountpoint string        `json:"mountpoint"`
	Removable  bool          `json:"rm"`
	Type       string        `json:"type"`
	Children   []lsblkDevice `json:"children"`
}

func (l *Lister) listLinux(ctx context.Context) ([]media.Device, error) {
	out, err := l.run.Run(ctx, "lsblk", "-J", "-b",
		"-o", "NAME,SIZE,MODEL,FSTYPE,MOUNTPOINT,RM,TYPE")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDevice, err.Error())
	}
	return parseLsblk([]byte(out))
}

func parseLsblk(data []byte) ([]media.Device, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(errors.ErrDevice, err.Error())
	}

	var devices []media.Device
	for _, d := range parsed.Blockdevices {
		if !d.Removable || d.Type != "disk" {
			continue
		}
		dev := media.Device{
			Name:   d.Name,
			Number: -1,
			Label:  strings.TrimSpace(d.Model),
			Size:   d.Size,
		}
		if len(d.Children) > 0 {
			dev.Filesystem = d.Children[0].Fstype
			dev.MountHandle = d.Children[0].Mountpoint
		}
		devices = append(devices, dev)
	}
	slog.Info("device_list", "platform", "linux", "count", len(devices))
	return devices, nil
}

var (
	darwinDiskRe = regexp.MustCompile(`(?m)^/dev/(disk\d+) \(external, physical\):`)
	darwinSizeRe = regexp.MustCompile(`\((\d+) Bytes`)
)

func (l *Lister) listDarwin(ctx context.Context) ([]media.Device, error) {
	out, err := l.run.Run(ctx, "diskutil", "list", "external", "physical")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDevice, err.Error())
	}

	var devices []media.Device
	for _, m := range darwinDiskRe.FindAllStringSubmatch(out, -1) {
		name := m[1]
		dev := media.Device{Name: name, Number: -1}

		info, err := l.run.Run(ctx, "diskutil", "info", name)
		if err != nil {
			dev.Error = err.Error()
			devices = append(devices, dev)
			continue
		}
		for _, line := range strings.Split(info, "\n") {
			key, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.TrimSpace(key) {
			case "Device / Media Name":
				dev.Label = value
			case "Disk Size":
				if sm := darwinSizeRe.FindStringSubmatch(value); sm != nil {
					dev.Size, _ = strconv.ParseInt(sm[1], 10, 64)
				}
			case "Mount Point":
				dev.MountHandle = value
			case "File System Personality":
				dev.Filesystem = value
			}
		}
		devices = append(devices, dev)
	}
	slog.Info("device_list", "platform", "darwin", "count", len(devices))
	return devices, nil
}

// windowsDisk is the Get-Disk projection we request.
type windowsDisk struct {
	Number       int    `json:"Number"`
	FriendlyName string `json:"FriendlyName"`
	Size         int64  `json:"Size"`
}

func (l *Lister) listWindows(ctx context.Context) ([]media.Device, error) {
	out, err := l.run.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		"Get-Disk | Where-Object BusType -eq 'USB' | Select-Object Number,FriendlyName,Size | ConvertTo-Json")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDevice, err.Error())
	}
	return parseWindowsDisks([]byte(out))
}

func parseWindowsDisks(data []byte) ([]media.Device, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	// ConvertTo-Json emits a bare object for a single disk and an
	// array otherwise.
	var disks []windowsDisk
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &disks); err != nil {
			return nil, errors.Wrap(errors.ErrDevice, err.Error())
		}
	} else {
		var single windowsDisk
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, errors.Wrap(errors.ErrDevice, err.Error())
		}
		disks = append(disks, single)
	}

	var devices []media.Device
	for _, d := range disks {
		devices = append(devices, media.Device{
			Name:   d.FriendlyName,
			Number: d.Number,
			Label:  d.FriendlyName,
			Size:   d.Size,
		})
	}
	slog.Info("device_list", "platform", "windows", "count", len(devices))
	return devices, nil
}
