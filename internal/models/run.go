package models

import "time"

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord is the persisted summary of one pipeline run
type RunRecord struct {
	ID            string    `json:"id" badgerhold:"key"`
	SearchQuery   string    `json:"search_query"`
	TotalResults  int       `json:"total_results"`
	Status        string    `json:"status" badgerhold:"index"`
	Discovered    int       `json:"discovered"`
	ListingsCount int       `json:"listings_count"`
	CSVFile       string    `json:"csv_file,omitempty"`
	JSONFile      string    `json:"json_file,omitempty"`
	PayloadFile   string    `json:"payload_file,omitempty"`
	ReportFile    string    `json:"report_file,omitempty"`
	Delivered     bool      `json:"delivered"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
}

// RunPayload is the full run document written to disk and submitted to the delivery endpoint
type RunPayload struct {
	SearchQuery         string              `json:"search_query"`
	Timestamp           string              `json:"timestamp"`
	ListingsCount       int                 `json:"listings_count"`
	DataframeData       []map[string]string `json:"dataframe_data"`
	DetailedWebsiteData []DetailedListing   `json:"detailed_website_data"`
}
