package pdo

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditNote is the record encrypted into every carrier's Encrypted_data.
type AuditNote struct {
	Protocol  Protocol `json:"protocol"`
	Alias     string   `json:"alias"`
	Timestamp string   `json:"timestamp"`
	File      string   `json:"file"`
}

func newAuditNote(protocol Protocol, alias, file string, now time.Time) AuditNote {
	return AuditNote{
		Protocol:  protocol,
		Alias:     alias,
		Timestamp: now.UTC().Format(time.RFC3339),
		File:      file,
	}
}

func parseAuditNote(data []byte) (*AuditNote, error) {
	var n AuditNote
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("%w: audit note: %v", ErrNoProtectedData, err)
	}
	return &n, nil
}
