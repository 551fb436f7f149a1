package models

import (
	"encoding/json"
	"fmt"
)

// Progress is a tagged variant: either a bare percentage or a detailed
// per-stage report. The wire shape is either a JSON number or an object
// with at least a "percent" field.
type Progress struct {
	Percent int
	Detail  *ProgressDetail
}

// ProgressDetail carries stage-level progress alongside the percentage.
type ProgressDetail struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
	Step    string `json:"step,omitempty"`
}

// SimpleProgress builds a bare-percentage progress value.
func SimpleProgress(percent int) Progress {
	return Progress{Percent: percent}
}

// DetailedProgress builds a progress value carrying stage context.
func DetailedProgress(d ProgressDetail) Progress {
	return Progress{Percent: d.Percent, Detail: &d}
}

// IsDetailed reports whether the value carries stage context.
func (p Progress) IsDetailed() bool { return p.Detail != nil }

func (p Progress) MarshalJSON() ([]byte, error) {
	if p.Detail != nil {
		return json.Marshal(p.Detail)
	}
	return json.Marshal(p.Percent)
}

func (p *Progress) UnmarshalJSON(data []byte) error {
	var percent int
	if err := json.Unmarshal(data, &percent); err == nil {
		*p = Progress{Percent: percent}
		return nil
	}
	var detail ProgressDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return fmt.Errorf("progress must be a number or an object: %w", err)
	}
	*p = Progress{Percent: detail.Percent, Detail: &detail}
	return nil
}
