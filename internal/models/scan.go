package models

import (
	"encoding/json"
	"fmt"
)

// ScanStatus is the state of a scan job as reported by the server.
type ScanStatus string

const (
	ScanStatusWaiting    ScanStatus = "waiting"
	ScanStatusProcessing ScanStatus = "processing"
	// ScanStatusNone marks the absence of an active scan. The server sends it as an empty string.
	ScanStatusNone ScanStatus = "none"
)

func (s ScanStatus) String() string { return string(s) }

// Active reports whether the status describes an in-flight scan.
func (s ScanStatus) Active() bool {
	return s == ScanStatusWaiting || s == ScanStatusProcessing
}

func (s ScanStatus) MarshalText() ([]byte, error) {
	if s == ScanStatusNone {
		return []byte{}, nil
	}
	return []byte(s), nil
}

// UnmarshalText maps the wire value onto a [ScanStatus].
// Unknown values are kept as-is and rejected later by [Validate].
func (s *ScanStatus) UnmarshalText(b []byte) error {
	switch v := string(b); v {
	case "", string(ScanStatusNone):
		*s = ScanStatusNone
	default:
		*s = ScanStatus(v)
	}
	return nil
}

// Scan is a server-side background job (re)inspecting a course's on-disk content.
//
// ID is server-assigned and immutable. A course has at most one active scan, so CourseID is unique among active scans.
type Scan struct {
	ID          string     `json:"id" validate:"required"`
	CourseID    string     `json:"courseId" validate:"required"`
	CourseTitle string     `json:"courseTitle,omitempty"`
	CoursePath  string     `json:"coursePath,omitempty"`
	Status      ScanStatus `json:"status" validate:"oneof=waiting processing none"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   Timestamp  `json:"createdAt"`
}

// Merge copies every field of src into s, keeping the receiver's identity.
func (s *Scan) Merge(src Scan) {
	*s = src
}

// ScanCreate is the request body for starting a scan.
type ScanCreate struct {
	CourseID string `json:"courseId" validate:"required"`
}

// Pagination carries the paging metadata of a paginated listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// ScanList is the response of the active scan listing.
//
// Depending on the server revision the payload is either a bare array or a paginated envelope.
type ScanList struct {
	Pagination
	Items []Scan `json:"items" validate:"dive"`
}

func (l *ScanList) UnmarshalJSON(b []byte) error {
	var items []Scan
	if err := json.Unmarshal(b, &items); err == nil {
		*l = ScanList{Items: items, Pagination: Pagination{Page: 1, PerPage: len(items), TotalItems: len(items), TotalPages: 1}}
		return nil
	}

	var envelope struct {
		Pagination
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return fmt.Errorf("scan list is neither an array nor a paginated object: %w", err)
	}
	if envelope.Items == nil {
		return fmt.Errorf("scan list is missing items")
	}

	// A nil slice on the server side arrives as "items": null.
	var scans []Scan
	if err := json.Unmarshal(envelope.Items, &scans); err != nil {
		return fmt.Errorf("scan list items: %w", err)
	}
	if scans == nil {
		scans = []Scan{}
	}

	*l = ScanList{Pagination: envelope.Pagination, Items: scans}
	return nil
}
