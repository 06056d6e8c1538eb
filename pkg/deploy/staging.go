package deploy

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/fallback"
	"github.com/zikani/smartboot/pkg/platform"
	"github.com/zikani/smartboot/pkg/progress"
	"github.com/zikani/smartboot/pkg/security"
)

// stager extracts an ISO into a throwaway directory under workDir.
// Extraction is a fallback chain: an archive tool when one is present,
// a loop mount copy as the unix last resort.
type stager struct {
	run       platform.Runner
	validator *security.Validator
	workDir   string
	goos      string
}

// stage extracts imagePath and returns the staging directory. The
// caller owns the directory and must remove it on every exit path.
func (s *stager) stage(ctx context.Context, imagePath string, imageSize int64, rep *progress.Reporter) (string, error) {
	root := s.workDir
	if root == "" {
		root = os.TempDir()
	}
	dir, err := os.MkdirTemp(root, "smartboot-staging-")
	if err != nil {
		return "", errors.Wrap(errors.ErrExtraction, err.Error())
	}

	methods := []fallback.Method{
		{
			Name:  "7z",
			Check: func() bool { return s.run.LookPath("7z") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "7z", "x", "-y", "-o"+dir, imagePath)
				return err
			},
		},
		{
			Name:  "bsdtar",
			Check: func() bool { return s.run.LookPath("bsdtar") },
			Run: func(ctx context.Context) error {
				_, err := s.run.Run(ctx, "bsdtar", "-xf", imagePath, "-C", dir)
				return err
			},
		},
		{
			Name:  "loop mount copy",
			Check: func() bool { return s.goos == "linux" && s.run.LookPath("mount") },
			Run:   func(ctx context.Context) error { return s.mountAndCopy(ctx, imagePath, dir) },
		},
	}

	if _, err := fallback.Execute(ctx, rep, stepExtract, "image extraction", methods); err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, errors.ErrCancelled) {
			return "", err
		}
		return "", errors.Wrap(errors.ErrExtraction, err.Error())
	}

	if err := s.validateStaged(dir, imageSize); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

// mountAndCopy loop-mounts the image read-only and copies the tree out.
func (s *stager) mountAndCopy(ctx context.Context, imagePath, dir string) error {
	mnt, err := os.MkdirTemp("", "smartboot-loop-")
	if err != nil {
		return err
	}
	defer os.Remove(mnt)

	if _, err := s.run.Run(ctx, "mount", "-o", "loop,ro", imagePath, mnt); err != nil {
		return err
	}
	defer s.run.Run(context.WithoutCancel(ctx), "umount", mnt)

	return copyTree(ctx, mnt, dir, nil)
}

// validateStaged walks the extracted tree and applies the staging
// limits: per-file size, cumulative size, escape from the staging root
// and the overall expansion ratio against the compressed image.
func (s *stager) validateStaged(dir string, imageSize int64) error {
	s.validator.Reset()
	var total int64

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := s.validator.ValidateStagedFile(dir, path); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := s.validator.ValidateFileSize(info.Size()); err != nil {
			return err
		}
		if err := s.validator.AddExtractedSize(info.Size()); err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.ErrExtraction, err.Error())
	}
	if imageSize > 0 {
		if err := s.validator.ValidateCompressionRatio(imageSize, total); err != nil {
			return errors.Wrap(errors.ErrExtraction, err.Error())
		}
	}
	return nil
}

// copyTree copies every file under src to the same relative path under
// dst. onFile, when set, observes each copied file's size.
func copyTree(ctx context.Context, src, dst string, onFile func(size int64)) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCancelled, "copy interrupted")
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			// Symlinks do not survive FAT targets; skip anything that
			// is not a plain file.
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		if onFile != nil {
			if info, err := d.Info(); err == nil {
				onFile(info.Size())
			}
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
