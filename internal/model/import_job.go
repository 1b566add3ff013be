package model

// Import job states. FAILED is reachable from any state on an unrecoverable
// input error; per-item failures never move a job there.
const (
	JobStateInitializing = "initializing"
	JobStateValidating   = "validating"
	JobStateExtracting   = "extracting"
	JobStateLoading      = "loading_metadata"
	JobStateProcessing   = "processing"
	JobStateFinalizing   = "finalizing"
	JobStateDone         = "done"
	JobStateFailed       = "failed"
)

const (
	ItemStatusSuccess = "success"
	ItemStatusFailed  = "failed"

	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// ImportItem is the outcome of one image within a batch.
type ImportItem struct {
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	Character   string `json:"character,omitempty"`
	ErrorReason string `json:"error_reason,omitempty"`
}

// ImportRecord is the reconciled per-image input handed to the upsert engine.
type ImportRecord struct {
	ID               string
	Character        string
	Structure        StructureClass
	Variant          Variant
	Level            Level
	StrokeCount      int
	StrokeOrder      string
	Pinyin           string
	Comment          string
	ImagePath        string
	MatchByCharacter bool
}

// ImportJob is the persisted job row polled over HTTP. It outlives the
// in-memory batch so a separate process can report progress.
type ImportJob struct {
	ID           string   `json:"id"`
	State        string   `json:"state"`
	Progress     int      `json:"progress"`
	Message      string   `json:"message"`
	ResultStatus string   `json:"result_status,omitempty"`
	ReportURL    string   `json:"report_url,omitempty"`
	ReportPath   string   `json:"report_path,omitempty"`
	Total        int      `json:"total"`
	Succeeded    int      `json:"succeeded"`
	Failed       int      `json:"failed"`
	Workspace    string   `json:"workspace,omitempty"`
	RecentLogs   []string `json:"recent_logs"`
	Ctime        int64    `json:"ctime"`
	Mtime        int64    `json:"mtime"`
}
