package models

import (
	"encoding/json"
	"fmt"
)

// ScanEventType discriminates the messages sent on the scan push channel.
type ScanEventType string

const (
	EventAllScans    ScanEventType = "all_scans"
	EventScanUpdate  ScanEventType = "scan_update"
	EventScanDeleted ScanEventType = "scan_deleted"
	EventError       ScanEventType = "error"
)

// ScanEvent is a single message from the scan push channel: JSON {type, data}.
//
// Some server revisions send error events with the message at the top level, so Message is decoded as well.
type ScanEvent struct {
	Type    ScanEventType   `json:"type" validate:"oneof=all_scans scan_update scan_deleted error"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// DeletedScan is the payload of a scan_deleted event.
type DeletedScan struct {
	ID string `json:"id" validate:"required"`
}

// ParseScanEvent decodes and validates a raw event frame, including its payload.
func ParseScanEvent(b []byte) (*ScanEvent, error) {
	var ev ScanEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode scan event: %w", err)
	}
	if err := Validate(&ev); err != nil {
		return nil, err
	}

	var err error
	switch ev.Type {
	case EventAllScans:
		_, err = ev.Scans()
	case EventScanUpdate:
		_, err = ev.Scan()
	case EventScanDeleted:
		_, err = ev.Deleted()
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Scans returns the snapshot carried by an all_scans event.
func (e *ScanEvent) Scans() ([]Scan, error) {
	if e.Type != EventAllScans {
		return nil, fmt.Errorf("event %s has no scan snapshot", e.Type)
	}
	var list ScanList
	if err := json.Unmarshal(e.Data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode all_scans payload: %w", err)
	}
	if err := Validate(&list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Scan returns the record carried by a scan_update event.
func (e *ScanEvent) Scan() (*Scan, error) {
	if e.Type != EventScanUpdate {
		return nil, fmt.Errorf("event %s has no scan", e.Type)
	}
	var scan Scan
	if err := json.Unmarshal(e.Data, &scan); err != nil {
		return nil, fmt.Errorf("failed to decode scan_update payload: %w", err)
	}
	if err := Validate(&scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// Deleted returns the identifier carried by a scan_deleted event.
func (e *ScanEvent) Deleted() (*DeletedScan, error) {
	if e.Type != EventScanDeleted {
		return nil, fmt.Errorf("event %s has no deleted scan", e.Type)
	}
	var d DeletedScan
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode scan_deleted payload: %w", err)
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ErrorMessage returns the message of an error event.
func (e *ScanEvent) ErrorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return "Unknown error"
}
