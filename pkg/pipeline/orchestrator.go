// Package pipeline sequences one media creation run: format the
// device, deploy the image, install boot code. The orchestrator owns
// the state machine and the progress stream; stages never talk to each
// other directly.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/image"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/progress"
)

// State is the orchestrator's position in the run.
type State int32

const (
	StateIdle State = iota
	StateFormatting
	StateDeploying
	StateInstallingBoot
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFormatting:
		return "formatting"
	case StateDeploying:
		return "deploying"
	case StateInstallingBoot:
		return "installing_boot"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Formatter is the formatting stage.
type Formatter interface {
	Format(ctx context.Context, dev *media.Device, spec media.FormatSpec, rep *progress.Reporter) error
}

// Deployer is the image deployment stage. raw forces block-for-block
// duplication instead of extract-and-copy.
type Deployer interface {
	Deploy(ctx context.Context, dev *media.Device, info *image.Info, raw bool, rep *progress.Reporter) error
}

// BootInstaller is the boot installation stage.
type BootInstaller interface {
	CheckPrivileges(ctx context.Context) error
	InstallBIOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error
	InstallUEFI(ctx context.Context, dev *media.Device, rep *progress.Reporter) error
	InstallFreeDOS(ctx context.Context, dev *media.Device, rep *progress.Reporter) error
}

// Request is everything one run needs. The device is mutated in place:
// its MountHandle tracks the live mount through the run and survives a
// failed run so the operator can inspect or clean up the volume.
type Request struct {
	Device *media.Device
	Format media.FormatSpec
	Boot   media.BootSpec
	Image  *image.Info

	// Raw writes the image block-for-block instead of extracting it.
	// Raw media carries its own boot code, so the boot stage is
	// skipped just as for generic images.
	Raw bool
}

// Result is the terminal outcome of a run. Stage is the stage the
// pipeline reached; on success it is StateDone, on failure the stage
// that was in progress.
type Result struct {
	Stage   State
	Success bool
	Message string
}

// Orchestrator drives one run from Idle to a terminal state. It is
// single use; create a new one per run.
type Orchestrator struct {
	formatter Formatter
	deployer  Deployer
	installer BootInstaller
	rep       *progress.Reporter

	state     atomic.Int32
	cancelled atomic.Bool
	warning   string
}

// New creates an orchestrator reporting to sink. sink may be nil.
func New(f Formatter, d Deployer, b BootInstaller, sink progress.Sink) *Orchestrator {
	return &Orchestrator{
		formatter: f,
		deployer:  d,
		installer: b,
		rep:       progress.NewReporter(sink),
	}
}

// State returns the current state. Safe to call from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Cancel requests a cooperative stop. The run finishes its current
// stage and stops at the next stage boundary; a stage that has already
// begun is never interrupted mid-write.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
	slog.Info("pipeline_cancel_requested", "state", o.State().String())
}

// Run executes the pipeline synchronously. The Result carries the
// stage reached and a terminal message; err is non-nil whenever
// Result.Success is false. Run may be called once.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateFormatting)) {
		return nil, errors.New("pipeline already ran")
	}

	if err := media.Validate(req.Format, req.Boot); err != nil {
		return o.fail(err)
	}
	if req.Device.Error != "" {
		return o.fail(errors.Wrapf(errors.ErrDevice, "%s: %s", req.Device.Name, req.Device.Error))
	}
	if err := o.installer.CheckPrivileges(ctx); err != nil {
		return o.fail(err)
	}

	// First of the three stage boundaries. A Cancel issued before the
	// run started must stop it ahead of the destructive format.
	if err := o.checkpoint(ctx, StateFormatting); err != nil {
		return &Result{Stage: StateIdle, Message: err.Error()}, err
	}

	slog.Info("pipeline_start",
		"device", req.Device.Name,
		"filesystem", req.Format.Filesystem,
		"scheme", req.Format.Scheme,
		"boot_type", req.Boot.Type,
		"image", req.Image.Path,
		"image_type", req.Image.Type)

	o.rep.StageReset()
	if err := o.formatter.Format(ctx, req.Device, req.Format, o.rep); err != nil {
		return o.fail(err)
	}

	if err := o.transition(ctx, StateDeploying); err != nil {
		return &Result{Stage: StateFormatting, Message: err.Error()}, err
	}
	if err := o.deployer.Deploy(ctx, req.Device, req.Image, req.Raw, o.rep); err != nil {
		return o.fail(err)
	}

	if err := o.transition(ctx, StateInstallingBoot); err != nil {
		return &Result{Stage: StateDeploying, Message: err.Error()}, err
	}
	if err := o.installBoot(ctx, req); err != nil {
		return o.fail(err)
	}

	o.state.Store(int32(StateDone))
	slog.Info("pipeline_done", "device", req.Device.Name)
	msg := "media created"
	if o.warning != "" {
		msg = "media created; " + o.warning
	}
	o.rep.Terminal(progress.OutcomeSuccess, msg)
	return &Result{Stage: StateDone, Success: true, Message: msg}, nil
}

// installBoot dispatches on the boot type. A dual request always
// attempts both firmwares and succeeds if either leg does. A generic
// raw image carries its own boot code and skips the stage body.
func (o *Orchestrator) installBoot(ctx context.Context, req Request) error {
	if req.Raw || req.Image.Type == media.ImageGeneric {
		o.rep.Report(100, "boot code embedded in raw image")
		return nil
	}

	switch req.Boot.Type {
	case media.BootBIOS:
		return o.installer.InstallBIOS(ctx, req.Device, o.rep)
	case media.BootFreeDOS:
		return o.installer.InstallFreeDOS(ctx, req.Device, o.rep)
	case media.BootUEFI:
		return o.installer.InstallUEFI(ctx, req.Device, o.rep)
	case media.BootDual:
		biosErr := o.installer.InstallBIOS(ctx, req.Device, o.rep)
		uefiErr := o.installer.InstallUEFI(ctx, req.Device, o.rep)
		switch {
		case biosErr == nil && uefiErr == nil:
			return nil
		case biosErr == nil:
			slog.Warn("pipeline_dual_uefi_failed", "error", uefiErr)
			o.warning = "uefi install failed, bios boot only"
			return nil
		case uefiErr == nil:
			slog.Warn("pipeline_dual_bios_failed", "error", biosErr)
			o.warning = "bios install failed, uefi boot only"
			return nil
		default:
			return errors.Wrapf(errors.ErrBootSector, "bios: %v; uefi: %v", biosErr, uefiErr)
		}
	default:
		return fmt.Errorf("unknown boot type %q", req.Boot.Type)
	}
}

// checkpoint enforces the stage boundary: a pending cancellation stops
// the run before next begins.
func (o *Orchestrator) checkpoint(ctx context.Context, next State) error {
	if o.cancelled.Load() || ctx.Err() != nil {
		o.state.Store(int32(StateCancelled))
		slog.Info("pipeline_cancelled", "before", next.String())
		o.rep.Terminal(progress.OutcomeCancelled, "cancelled at stage boundary")
		return errors.Wrapf(errors.ErrCancelled, "before %s", next)
	}
	return nil
}

// transition moves to next at a stage boundary, honoring cancellation.
// Progress percentages reset here so each stage starts its own 0-100.
func (o *Orchestrator) transition(ctx context.Context, next State) error {
	if err := o.checkpoint(ctx, next); err != nil {
		return err
	}
	slog.Info("pipeline_stage", "state", next.String())
	o.state.Store(int32(next))
	o.rep.StageReset()
	return nil
}

// fail records a terminal failure. Cancellation inside a stage lands
// here too and keeps its own terminal state. The device's mount handle
// is left as-is so partial results stay reachable.
func (o *Orchestrator) fail(err error) (*Result, error) {
	stage := o.State()
	res := &Result{Stage: stage, Message: err.Error()}
	if errors.Is(err, errors.ErrCancelled) {
		o.state.Store(int32(StateCancelled))
		o.rep.Terminal(progress.OutcomeCancelled, err.Error())
		return res, err
	}
	o.state.Store(int32(StateFailed))
	slog.Error("pipeline_failed", "stage", stage.String(), "error", err)
	o.rep.Terminal(progress.OutcomeFailure, err.Error())
	return res, err
}
