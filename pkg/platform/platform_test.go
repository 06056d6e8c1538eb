package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// fakeRunner records every invocation and answers from canned tables.
type fakeRunner struct {
	available map[string]bool
	outputs   map[string]string
	failures  map[string]error
	calls     [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.outputs[name], f.failures[name]
}

func (f *fakeRunner) LookPath(name string) bool {
	return f.available[name]
}

func (f *fakeRunner) called(name string) []string {
	for _, c := range f.calls {
		if c[0] == name {
			return c
		}
	}
	return nil
}

func TestNew_SelectsByGOOS(t *testing.T) {
	r := &fakeRunner{}
	tests := []struct {
		goos string
		want string
	}{
		{"linux", "linux"},
		{"darwin", "darwin"},
		{"windows", "windows"},
		{"plan9", "plan9"},
	}
	for _, tt := range tests {
		if got := New(tt.goos, r).OS(); got != tt.want {
			t.Errorf("New(%q).OS() = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestUnsupported_AllOperationsFail(t *testing.T) {
	s := New("plan9", &fakeRunner{})
	dev := &media.Device{Name: "sdb"}
	rep := progress.NewReporter(nil)

	if err := s.CheckPrivileges(context.Background()); !errors.Is(err, errors.ErrUnsupportedPlatform) {
		t.Errorf("CheckPrivileges() = %v", err)
	}
	if err := s.InstallBIOS(context.Background(), dev, rep); !errors.Is(err, errors.ErrUnsupportedPlatform) {
		t.Errorf("InstallBIOS() = %v", err)
	}
	if err := s.InstallUEFI(context.Background(), dev, rep); !errors.Is(err, errors.ErrUnsupportedPlatform) {
		t.Errorf("InstallUEFI() = %v", err)
	}
	if err := s.InstallFreeDOS(context.Background(), dev, rep); !errors.Is(err, errors.ErrUnsupportedPlatform) {
		t.Errorf("InstallFreeDOS() = %v", err)
	}
}

func TestLinuxInstallFreeDOS_ActivatesThenWritesBootSector(t *testing.T) {
	r := &fakeRunner{available: map[string]bool{"parted": true, "dd": true}}
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1}

	if err := s.InstallFreeDOS(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallFreeDOS() error = %v", err)
	}

	parted := r.called("parted")
	if parted == nil {
		t.Fatal("partition was never marked bootable")
	}
	want := []string{"parted", "-s", "/dev/sdb", "set", "1", "boot", "on"}
	if strings.Join(parted, " ") != strings.Join(want, " ") {
		t.Errorf("parted args = %v, want %v", parted, want)
	}

	dd := r.called("dd")
	if dd == nil {
		t.Fatal("boot sector write never reached the BIOS chain")
	}
	if strings.Join(r.calls[0], " ")[:6] != "parted" {
		t.Errorf("activation must precede the boot sector write: %v", r.calls)
	}
}

func TestLinuxInstallFreeDOS_ActivationFailureIsNotFatal(t *testing.T) {
	r := &fakeRunner{
		available: map[string]bool{"parted": true, "dd": true},
		failures:  map[string]error{"parted": errors.New("device busy")},
	}
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1}

	if err := s.InstallFreeDOS(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallFreeDOS() error = %v, activation failure must not kill the chain", err)
	}
	if r.called("dd") == nil {
		t.Error("BIOS chain skipped after a failed activation")
	}
}

func TestWindowsInstallFreeDOS_MarksActiveThenBIOSChain(t *testing.T) {
	r := &fakeRunner{available: map[string]bool{"diskpart": true, "dd": true}}
	s := New("windows", r)
	dev := &media.Device{Name: "USB Disk", Number: 2, MountHandle: `E:\`}

	if err := s.InstallFreeDOS(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallFreeDOS() error = %v", err)
	}
	if r.called("diskpart") == nil {
		t.Error("diskpart active step never ran")
	}
	dd := r.called("dd")
	if dd == nil {
		t.Fatal("boot sector write never reached the BIOS chain")
	}
	if !strings.Contains(strings.Join(dd, " "), `\\.\PhysicalDrive2`) {
		t.Errorf("dd args = %v, want the physical drive target", dd)
	}
}

func TestCheckRootPrivileges(t *testing.T) {
	root := &fakeRunner{outputs: map[string]string{"id": "0"}}
	if err := checkRootPrivileges(context.Background(), root); err != nil {
		t.Errorf("uid 0: %v", err)
	}

	user := &fakeRunner{outputs: map[string]string{"id": "1000"}}
	if err := checkRootPrivileges(context.Background(), user); !errors.Is(err, errors.ErrPrivilege) {
		t.Errorf("uid 1000: error = %v, want ErrPrivilege", err)
	}
}

func TestWindows_CheckPrivileges(t *testing.T) {
	elevated := &fakeRunner{}
	if err := New("windows", elevated).CheckPrivileges(context.Background()); err != nil {
		t.Errorf("elevated: %v", err)
	}

	denied := &fakeRunner{failures: map[string]error{"net": errors.New("access is denied")}}
	if err := New("windows", denied).CheckPrivileges(context.Background()); !errors.Is(err, errors.ErrPrivilege) {
		t.Errorf("denied: error = %v, want ErrPrivilege", err)
	}
}

func TestLinuxInstallBIOS_FallsBackToGenericMBR(t *testing.T) {
	r := &fakeRunner{
		available: map[string]bool{"dd": true, "sfdisk": true},
	}
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1}

	if err := s.InstallBIOS(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallBIOS() error = %v", err)
	}

	dd := r.called("dd")
	if dd == nil {
		t.Fatal("dd was never invoked")
	}
	var hasBS, hasTarget bool
	for _, arg := range dd {
		if arg == "bs=446" {
			hasBS = true
		}
		if arg == "of=/dev/sdb" {
			hasTarget = true
		}
	}
	if !hasBS || !hasTarget {
		t.Errorf("dd args = %v, want bs=446 and of=/dev/sdb", dd)
	}
	if r.called("sfdisk") != nil {
		t.Error("sfdisk ran after dd succeeded")
	}
}

func TestLinuxInstallBIOS_SkipsToActivateWhenDDFails(t *testing.T) {
	r := &fakeRunner{
		available: map[string]bool{"dd": true, "sfdisk": true},
		failures:  map[string]error{"dd": errors.New("write error")},
	}
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1}

	if err := s.InstallBIOS(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallBIOS() error = %v", err)
	}
	if got := r.called("sfdisk"); got == nil {
		t.Fatal("sfdisk never ran")
	} else if got[1] != "--activate" || got[2] != "/dev/sdb" {
		t.Errorf("sfdisk args = %v", got)
	}
}

func TestLinuxInstallBIOS_AllMethodsExhausted(t *testing.T) {
	r := &fakeRunner{
		available: map[string]bool{"dd": true, "sfdisk": true},
		failures: map[string]error{
			"dd":     errors.New("io error"),
			"sfdisk": errors.New("no table"),
		},
	}
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1}

	err := s.InstallBIOS(context.Background(), dev, progress.NewReporter(nil))
	if !errors.Is(err, errors.ErrBootSector) {
		t.Fatalf("error = %v, want ErrBootSector", err)
	}
	for _, diag := range []string{"io error", "no table", "precondition not met"} {
		if !strings.Contains(err.Error(), diag) {
			t.Errorf("error %q missing diagnostic %q", err, diag)
		}
	}
}

func TestLinuxInstallBIOS_OneProgressEventPerAttempt(t *testing.T) {
	r := &fakeRunner{
		available: map[string]bool{"dd": true, "sfdisk": true},
		failures:  map[string]error{"dd": errors.New("write error")},
	}
	var col progress.Collector
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1}

	if err := s.InstallBIOS(context.Background(), dev, progress.NewReporter(col.Sink())); err != nil {
		t.Fatalf("InstallBIOS() error = %v", err)
	}
	// dd attempted and failed, sfdisk attempted and won: two events.
	if got := len(col.Events()); got != 2 {
		t.Errorf("got %d progress events, want 2: %v", got, col.Events())
	}
}

func TestLinuxInstallUEFI_RequiresMount(t *testing.T) {
	s := New("linux", &fakeRunner{})
	dev := &media.Device{Name: "sdb", Number: -1}

	err := s.InstallUEFI(context.Background(), dev, progress.NewReporter(nil))
	if !errors.Is(err, errors.ErrBootSector) {
		t.Fatalf("error = %v, want ErrBootSector", err)
	}
}

func TestLinuxInstallUEFI_GrubInstall(t *testing.T) {
	r := &fakeRunner{available: map[string]bool{"grub-install": true}}
	s := New("linux", r)
	dev := &media.Device{Name: "sdb", Number: -1, MountHandle: "/mnt/usb"}

	if err := s.InstallUEFI(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallUEFI() error = %v", err)
	}
	grub := r.called("grub-install")
	if grub == nil {
		t.Fatal("grub-install never ran")
	}
	joined := strings.Join(grub, " ")
	for _, want := range []string{"--target=x86_64-efi", "--removable", "--no-nvram", "--efi-directory=/mnt/usb", "/dev/sdb"} {
		if !strings.Contains(joined, want) {
			t.Errorf("grub-install args %q missing %q", joined, want)
		}
	}
}

func TestWindowsInstallBIOS_PowershellLastResort(t *testing.T) {
	r := &fakeRunner{available: map[string]bool{"powershell": true}}
	s := New("windows", r)
	dev := &media.Device{Name: "Disk 2", Number: 2, MountHandle: "E:"}

	if err := s.InstallBIOS(context.Background(), dev, progress.NewReporter(nil)); err != nil {
		t.Fatalf("InstallBIOS() error = %v", err)
	}
	ps := r.called("powershell")
	if ps == nil {
		t.Fatal("powershell never ran")
	}
	script := ps[len(ps)-1]
	if !strings.Contains(script, `\\.\PhysicalDrive2`) {
		t.Errorf("script does not target PhysicalDrive2: %q", script)
	}
	if !strings.Contains(script, "FromBase64String") {
		t.Errorf("script does not embed the boot code: %q", script)
	}
}

func TestRawMBRScript_PreservesPartitionTable(t *testing.T) {
	script := rawMBRScript(`\\.\PhysicalDrive1`)
	// The script must read the existing sector and write 512 bytes back
	// rather than truncating at the boot code boundary.
	for _, want := range []string{"Read($s,0,512)", "Write($s,0,512)"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q", want)
		}
	}
}
