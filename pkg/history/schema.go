package history

// Schema defines the SQLite schema for the run journal. Each row is
// one media creation run; the journal lives outside the pipeline and
// only observes it.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_name TEXT NOT NULL,
    device_label TEXT,
    image_path TEXT NOT NULL,
    image_type TEXT NOT NULL,
    filesystem TEXT NOT NULL,
    scheme TEXT NOT NULL,
    boot_type TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('running', 'done', 'failed', 'cancelled')),
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Run status constants
const (
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one journal row.
type Run struct {
	ID           int64
	DeviceName   string
	DeviceLabel  string
	ImagePath    string
	ImageType    string
	Filesystem   string
	Scheme       string
	BootType     string
	Status       string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
