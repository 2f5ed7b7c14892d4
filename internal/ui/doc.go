// Package ui implements a live scan dashboard using bubbletea's Elm architecture.
//
// The [Model] lists library courses and lets the user track them with the scan monitor or start a
// scan and track the course in one step. Status comes from two sources:
//   - the monitor's published status map, delivered through a store subscription
//   - the monitor's progress channel, shown as a one-line toast
//
// Both sources are bridged into tea messages with a latest-value channel so the monitor is never
// blocked by rendering.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, s, c, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
