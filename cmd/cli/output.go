package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/AcousticSync/pkg/models"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession"
	"github.com/himanishpuri/AcousticSync/pkg/syncsession/storage"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSessionHeader(w io.Writer, rec *storage.Session, files int) {
	name := rec.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "🎬 %s\n", name)
	fmt.Fprintf(w, "   Session:    %s\n", rec.ID)
	fmt.Fprintf(w, "   Files:      %d\n", files)
	fmt.Fprintf(w, "   Strictness: %s | Placement: %s | %s fps\n",
		rec.Strictness, rec.PlacementMode, humanize.Ftoa(rec.FrameRate))
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "   Updated:    %s\n", humanize.Time(rec.UpdatedAt))
	}
}

func printSummary(w io.Writer, res *models.SyncResult) {
	s := res.Summary
	fmt.Fprintf(w, "\n✅ %d of %d clip(s) matched, %d unmatched, average confidence %.2f\n",
		s.MatchedClips, s.TotalClips, s.UnmatchedClips, s.AverageConfidence)
	fmt.Fprintf(w, "   Timeline:   %s → %s (%d track(s))\n",
		syncsession.FormatTimecode(res.TimelineStart, res.FrameRate),
		syncsession.FormatTimecode(res.TimelineEnd, res.FrameRate),
		len(res.Tracks))
}

func trackRows(res *models.SyncResult) [][]string {
	var rows [][]string
	for _, tr := range res.Tracks {
		for _, id := range tr.ClipIDs {
			c, ok := res.Clips[id]
			if !ok {
				continue
			}
			pos := "-"
			if c.TimelinePosition != nil {
				pos = syncsession.FormatTimecode(*c.TimelinePosition, res.FrameRate)
			}
			rows = append(rows, []string{
				tr.Name,
				string(tr.Kind),
				filepath.Base(c.Path),
				pos,
				formatSeconds(c.DurationSeconds),
				string(c.Status),
				fmt.Sprintf("%.2f", c.Confidence),
			})
		}
	}
	return rows
}

func printTracks(w io.Writer, res *models.SyncResult) {
	rows := trackRows(res)
	if len(rows) == 0 {
		fmt.Fprintln(w, "\n📭 No clips on the timeline")
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable(
		[]string{"Track", "Kind", "Clip", "Start", "Duration", "Status", "Confidence"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
	))
}

func printEdges(w io.Writer, res *models.SyncResult) {
	if len(res.Edges) == 0 {
		return
	}
	name := func(id string) string {
		if c, ok := res.Clips[id]; ok {
			return filepath.Base(c.Path)
		}
		return id
	}
	edges := append([]models.MatchEdge(nil), res.Edges...)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Confidence > edges[j].Confidence })

	rows := make([][]string, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []string{
			name(e.ClipA),
			name(e.ClipB),
			string(e.Type),
			fmt.Sprintf("%+.3fs", e.OffsetSeconds),
			fmt.Sprintf("%.2f", e.Confidence),
			strings.Join(e.Reasons, ", "),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable(
		[]string{"Clip A", "Clip B", "Type", "Offset", "Confidence", "Reasons"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func printDiagnostics(w io.Writer, res *models.SyncResult) {
	if len(res.Warnings) > 0 {
		fmt.Fprintf(w, "\n⚠️  %d warning(s):\n", len(res.Warnings))
		for _, msg := range res.Warnings {
			fmt.Fprintf(w, "   - %s\n", msg)
		}
	}
	if len(res.Anomalies) > 0 {
		fmt.Fprintf(w, "\n🔎 %d anomal(ies):\n", len(res.Anomalies))
		for _, a := range res.Anomalies {
			clip := a.ClipID
			if c, ok := res.Clips[a.ClipID]; ok {
				clip = filepath.Base(c.Path)
			}
			fmt.Fprintf(w, "   - [%s] %s %s\n", a.Kind, clip, a.Detail)
		}
	}
}

func printResult(w io.Writer, res *models.SyncResult, withEdges bool) {
	printSummary(w, res)
	printTracks(w, res)
	if withEdges {
		printEdges(w, res)
	}
	printDiagnostics(w, res)
}

func printHistory(w io.Writer, history []storage.ResultRecord) {
	rows := make([][]string, 0, len(history))
	for i, h := range history {
		rows = append(rows, []string{
			fmt.Sprintf("%d", len(history)-i),
			humanize.Time(h.CreatedAt),
			fmt.Sprintf("%d/%d", h.MatchedClips, h.TotalClips),
			fmt.Sprintf("%.2f", h.AverageConfidence),
			formatSeconds(h.TimelineSeconds),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable(
		[]string{"Run", "Created", "Matched", "Confidence", "Length"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
	))
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(10 * time.Millisecond).String()
}
