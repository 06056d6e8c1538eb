package history

import (
	"path/filepath"
	"testing"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleRun() *Run {
	return &Run{
		DeviceName: "sdb",
		ImagePath:  "/images/ubuntu-24.04.iso",
		ImageType:  "linux",
		Filesystem: "FAT32",
		Scheme:     "GPT",
		BootType:   "UEFI",
		Status:     StatusRunning,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := testRepo(t)

	run := sampleRun()
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("run ID not assigned")
	}

	got, err := repo.Get(run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got == nil {
		t.Fatal("run not found")
	}
	if got.DeviceName != run.DeviceName || got.ImagePath != run.ImagePath || got.Status != StatusRunning {
		t.Errorf("retrieved run mismatch: got %+v", got)
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := testRepo(t)

	got, err := repo.Get(12345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing run, got %+v", got)
	}
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := testRepo(t)

	run := sampleRun()
	repo.Create(run)

	if err := repo.UpdateStatus(run.ID, StatusFailed, "mkfs exploded"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	updated, _ := repo.Get(run.ID)
	if updated.Status != StatusFailed || updated.ErrorMessage != "mkfs exploded" {
		t.Errorf("status not updated: %+v", updated)
	}

	if err := repo.UpdateStatus(99999, StatusDone, ""); err == nil {
		t.Error("expected error updating a missing run")
	}
}

func TestRepository_ListAndPrune(t *testing.T) {
	repo := testRepo(t)

	for i := 0; i < 5; i++ {
		run := sampleRun()
		run.Status = StatusDone
		if err := repo.Create(run); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 5 {
		t.Fatalf("expected 5 runs, got %d", len(runs))
	}

	limited, err := repo.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs with limit, got %d", len(limited))
	}

	deleted, err := repo.Prune(3)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("pruned %d rows, want 2", deleted)
	}
	remaining, _ := repo.List(0)
	if len(remaining) != 3 {
		t.Errorf("expected 3 remaining runs, got %d", len(remaining))
	}
}
