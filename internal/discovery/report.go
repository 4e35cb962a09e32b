package discovery

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	MessageNoCandidates = "No suppliers matched requirements."
	MessageFailed       = "Max retries reached. Supply chain could not be validated."
	MessageCancelled    = "Session ended before the supply chain could be validated."
)

// Report is the terminal, persisted outcome of a session.
type Report struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"session_id"`
	Status          Status            `json:"status"`
	Message         string            `json:"message,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	TopSuppliers    []RankedCandidate `json:"top_suppliers"`
	EvaluationModel string            `json:"evaluation_model,omitempty"`
	EvaluationNotes string            `json:"evaluation_notes,omitempty"`
	Requirements    Requirements      `json:"requirements"`
	Retries         int               `json:"retries"`
	CreatedAt       time.Time         `json:"created_at"`
}

// EncodeReport serializes a report. Map keys are emitted in sorted order so
// identical reports always encode to identical bytes.
func EncodeReport(r Report) ([]byte, error) {
	if r.TopSuppliers == nil {
		r.TopSuppliers = []RankedCandidate{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return b, nil
}

// DecodeReport parses bytes produced by EncodeReport.
func DecodeReport(b []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

func newReport(id, sessionID string, status Status, reqs Requirements, retries int, ev Evaluation, at time.Time) Report {
	r := Report{
		ID:           id,
		SessionID:    sessionID,
		Status:       status,
		Requirements: reqs,
		Retries:      retries,
		TopSuppliers: []RankedCandidate{},
		CreatedAt:    at.UTC(),
	}
	switch status {
	case StatusSuccess:
		r.TopSuppliers = ev.Ranked
		r.Summary = fmt.Sprintf("%d top suppliers selected.", len(ev.Ranked))
		r.EvaluationModel = ev.Model
		r.EvaluationNotes = ev.Notes
	case StatusNoCandidates:
		r.Message = MessageNoCandidates
	case StatusFailed:
		r.Message = MessageFailed
		r.EvaluationModel = ev.Model
		r.EvaluationNotes = ev.Notes
	case StatusRetryExhausted:
		r.Message = MessageCancelled
	}
	return r
}
