package web

import (
	"maps"
	"slices"
	"strconv"

	"github.com/csvreorder/csvreorder/internal/core"
	"github.com/csvreorder/csvreorder/internal/web/templates"
)

// pageView builds the full document view model for snap.
func pageView(snap core.Snapshot) templates.PageData {
	return templates.PageData{Workspace: workspaceView(snap)}
}

// workspaceView builds the workspace fragment view model for snap.
func workspaceView(snap core.Snapshot) templates.WorkspaceData {
	data := templates.WorkspaceData{
		HasFile:   snap.State.HasFile(),
		Filename:  snap.Filename,
		State:     snap.State.String(),
		Rows:      snap.Rows,
		Notes:     loadNotes(snap.Stats),
		Preview:   snap.Preview,
		CanExport: snap.CanExport,
	}
	if snap.Error != nil {
		alert := alertView(*snap.Error)
		data.Alert = &alert
	}

	data.Columns = make([]templates.Column, len(snap.Order))
	for i, name := range snap.Order {
		data.Columns[i] = templates.Column{
			Index: i,
			Name:  name,
			First: i == 0,
			Last:  i == len(snap.Order)-1,
		}
	}

	if exp := snap.Export; exp != nil {
		data.Download = &templates.Download{
			URL:      downloadURL(exp.ID),
			Filename: exp.Filename,
			Size:     exp.Size,
			Stale:    exp.Stale,
		}
	}
	return data
}

func alertView(msg core.UserMessage) templates.Alert {
	return templates.Alert{Message: msg.Message, Action: msg.Action, Code: msg.Code}
}

// loadNotes describes the repairs made while parsing.
func loadNotes(stats *core.LoadStats) []string {
	if stats == nil {
		return nil
	}
	var notes []string
	for _, renamed := range slices.Sorted(maps.Keys(stats.Renamed)) {
		original := stats.Renamed[renamed]
		notes = append(notes, "Duplicate column "+strconv.Quote(original)+" renamed to "+strconv.Quote(renamed)+".")
	}
	if stats.ShortRows > 0 {
		notes = append(notes, strconv.Itoa(stats.ShortRows)+" rows had fewer cells than the header; missing cells export as empty.")
	}
	if stats.ExtraFields > 0 {
		notes = append(notes, strconv.Itoa(stats.ExtraFields)+" cells beyond the last header column were dropped.")
	}
	return notes
}

func downloadURL(handleID string) string {
	return "/download/" + handleID
}
