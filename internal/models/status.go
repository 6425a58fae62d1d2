package models

// IndexStatus describes the published index snapshot.
type IndexStatus struct {
	Location   string `json:"location"`
	Entries    int    `json:"entries"`
	Documents  int    `json:"documents"`
	Dimensions int    `json:"dimensions"`
}

// StatusReport is the payload of the status endpoint and the status command.
type StatusReport struct {
	Index          IndexStatus            `json:"index"`
	Catalog        map[string]int64       `json:"catalog"`
	QueuePending   int                    `json:"queue_pending"`
	Config         map[string]interface{} `json:"config,omitempty"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	DiskUsage      string                 `json:"disk_usage,omitempty"`
}
