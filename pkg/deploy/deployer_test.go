package deploy

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/image"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
	"github.com/zikani/smartboot/pkg/security"
)

type fakeRunner struct {
	available map[string]bool
	failures  map[string]error
	calls     [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return "", f.failures[name]
}

func (f *fakeRunner) LookPath(name string) bool {
	return f.available[name]
}

func testValidator() *security.Validator {
	return security.NewValidator(1<<40, 1<<40, 1e6)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWriteChunks(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5, 0x5A, 0x01}, (2<<20)/3+1)
	var dst bytes.Buffer
	var reports []int64

	written, err := writeChunks(context.Background(), &dst, bytes.NewReader(payload), 0,
		func(w int64) { reports = append(reports, w) })
	if err != nil {
		t.Fatalf("writeChunks() error = %v", err)
	}
	if written != int64(len(payload)) {
		t.Errorf("written = %d, want %d", written, len(payload))
	}
	if !bytes.Equal(dst.Bytes(), payload) {
		t.Error("output differs from input")
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] <= reports[i-1] {
			t.Errorf("chunk reports not increasing: %v", reports)
		}
	}
}

func TestWriteChunks_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := writeChunks(ctx, &dst, bytes.NewReader(make([]byte, 2<<20)), 0, nil)
	if !errors.Is(err, errors.ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
}

func TestOpenImageStream_Gzip(t *testing.T) {
	payload := bytes.Repeat([]byte("boot media payload "), 4096)
	path := filepath.Join(t.TempDir(), "image.img.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	stream, err := openImageStream(context.Background(), path)
	if err != nil {
		t.Fatalf("openImageStream() error = %v", err)
	}
	defer stream.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(stream); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Error("decompressed payload differs")
	}
	if stream.consumed == nil || *stream.consumed == 0 {
		t.Error("compressed position not tracked")
	}
}

func TestOpenImageStream_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")
	writeFile(t, path, "raw bytes")

	stream, err := openImageStream(context.Background(), path)
	if err != nil {
		t.Fatalf("openImageStream() error = %v", err)
	}
	defer stream.Close()

	var out bytes.Buffer
	out.ReadFrom(stream)
	if out.String() != "raw bytes" {
		t.Errorf("payload = %q", out.String())
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "boot", "vmlinuz"), "kernel")
	writeFile(t, filepath.Join(src, "isolinux", "isolinux.cfg"), "cfg")
	writeFile(t, filepath.Join(src, "readme.txt"), "hello")

	var total int64
	if err := copyTree(context.Background(), src, dst, func(n int64) { total += n }); err != nil {
		t.Fatalf("copyTree() error = %v", err)
	}

	for _, rel := range []string{"boot/vmlinuz", "isolinux/isolinux.cfg", "readme.txt"} {
		if _, err := os.Stat(filepath.Join(dst, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
	if want := int64(len("kernel") + len("cfg") + len("hello")); total != want {
		t.Errorf("total = %d, want %d", total, want)
	}
}

func TestPlaceBootFiles_Linux(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "isolinux", "isolinux.cfg"), "default linux")

	if err := placeBootFiles(media.ImageLinux, root); err != nil {
		t.Fatalf("placeBootFiles() error = %v", err)
	}
	for _, rel := range []string{"isolinux/syslinux.cfg", "syslinux/syslinux.cfg"} {
		got, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
		if string(got) != "default linux" {
			t.Errorf("%s content = %q", rel, got)
		}
	}
}

func TestPlaceBootFiles_Windows(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "efi", "microsoft", "boot", "bootmgfw.efi"), "loader")

	if err := placeBootFiles(media.ImageWindows, root); err != nil {
		t.Fatalf("placeBootFiles() error = %v", err)
	}
	got, err := os.ReadFile(filepath.Join(root, "EFI", "Boot", "bootx64.efi"))
	if err != nil {
		t.Fatalf("loader not placed: %v", err)
	}
	if string(got) != "loader" {
		t.Errorf("loader content = %q", got)
	}
}

func TestPlaceBootFiles_FreeDOS(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "KERNEL.SYS"), "k")
	writeFile(t, filepath.Join(root, "COMMAND.COM"), "c")

	if err := placeBootFiles(media.ImageFreeDOS, root); err != nil {
		t.Errorf("placeBootFiles() error = %v", err)
	}

	empty := t.TempDir()
	if err := placeBootFiles(media.ImageFreeDOS, empty); !errors.Is(err, errors.ErrExtraction) {
		t.Errorf("error = %v, want ErrExtraction for missing system files", err)
	}
}

func TestDeployTree_RequiresMount(t *testing.T) {
	d := NewDeployer("linux", &fakeRunner{}, testValidator())
	dev := &media.Device{Name: "sdb", Number: -1}
	info := &image.Info{Path: "/images/ubuntu.iso", Size: 1 << 30, Type: media.ImageLinux}

	err := d.Deploy(context.Background(), dev, info, false, progress.NewReporter(nil))
	if !errors.Is(err, errors.ErrDevice) {
		t.Fatalf("error = %v, want ErrDevice", err)
	}
}

func TestDeployTree_StagingCleanedUp(t *testing.T) {
	work := t.TempDir()
	target := t.TempDir()

	r := &fakeRunner{available: map[string]bool{"7z": true}}
	d := NewDeployer("linux", r, testValidator())
	d.WorkDir = work

	dev := &media.Device{Name: "sdb", Number: -1, MountHandle: target}
	info := &image.Info{Path: "/images/ubuntu.iso", Size: 1 << 30, Type: media.ImageLinux}

	var col progress.Collector
	if err := d.Deploy(context.Background(), dev, info, false, progress.NewReporter(col.Sink())); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	leftovers, err := os.ReadDir(work)
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("staging not cleaned up: %v", leftovers)
	}

	events := col.Events()
	if len(events) == 0 || events[len(events)-1].Percent != 100 {
		t.Errorf("final event = %+v", events[len(events)-1])
	}
}

func TestDeployTree_ExtractionFailureCleansStaging(t *testing.T) {
	work := t.TempDir()
	r := &fakeRunner{
		available: map[string]bool{"7z": true},
		failures:  map[string]error{"7z": errors.New("corrupt archive")},
	}
	d := NewDeployer("darwin", r, testValidator())
	d.WorkDir = work

	dev := &media.Device{Name: "disk2", Number: -1, MountHandle: t.TempDir()}
	info := &image.Info{Path: "/images/custom.iso", Size: 1 << 30, Type: media.ImageLinux}

	err := d.Deploy(context.Background(), dev, info, false, progress.NewReporter(nil))
	if !errors.Is(err, errors.ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}

	leftovers, _ := os.ReadDir(work)
	if len(leftovers) != 0 {
		t.Errorf("staging not cleaned up after failure: %v", leftovers)
	}
}

func TestDeployRaw_WritesAndInvalidatesMount(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "tiny.iso")
	payload := bytes.Repeat([]byte{0xEB}, 1<<20)
	if err := os.WriteFile(imagePath, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	// A scratch file stands in for the block device; character devices
	// like /dev/null reject fsync on some kernels.
	target := filepath.Join(t.TempDir(), "blockdev")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{}
	d := NewDeployer("linux", r, testValidator())

	dev := &media.Device{Name: target, Number: -1, MountHandle: "/mnt/usb", Filesystem: media.FSFat32}
	info := &image.Info{Path: imagePath, Size: int64(len(payload)), Type: media.ImageGeneric}

	var col progress.Collector
	if err := d.Deploy(context.Background(), dev, info, false, progress.NewReporter(col.Sink())); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if dev.MountHandle != "" || dev.Filesystem != "" {
		t.Errorf("mount handle survived a raw write: %q %q", dev.MountHandle, dev.Filesystem)
	}

	written, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(written, payload) {
		t.Errorf("device content differs from the image: %d bytes vs %d", len(written), len(payload))
	}

	events := col.Events()
	if events[len(events)-1].Percent != 100 {
		t.Errorf("final percent = %d", events[len(events)-1].Percent)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("progress went backwards: %v", events)
		}
	}
}

func TestDeploy_RawFlagForcesBlockCopy(t *testing.T) {
	imagePath := filepath.Join(t.TempDir(), "ubuntu.iso")
	if err := os.WriteFile(imagePath, bytes.Repeat([]byte{0x42}, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(t.TempDir(), "blockdev")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeRunner{available: map[string]bool{"7z": true}}
	d := NewDeployer("linux", r, testValidator())

	dev := &media.Device{Name: target, Number: -1, MountHandle: "/mnt/usb"}
	info := &image.Info{Path: imagePath, Size: 4096, Type: media.ImageLinux}

	if err := d.Deploy(context.Background(), dev, info, true, progress.NewReporter(nil)); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	for _, call := range r.calls {
		if call[0] == "7z" {
			t.Error("extraction ran for a raw write request")
		}
	}
	if dev.MountHandle != "" {
		t.Error("mount handle survived a raw write")
	}
}
