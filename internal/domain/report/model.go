package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
)

const (
	NoteNoData      = "no data this window"
	NoteNoBaseline  = "no baseline before window"
	NoteReadFailed  = "snapshot read failed"
	NoteStalePrefix = "latest ingestion failed"
)

// Definition is one configured scheduled report.
type Definition struct {
	Name       string
	Game       game.ID
	Schedule   string
	Lookback   time.Duration
	Recipients []string
}

func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("report name is required")
	}
	if !d.Game.Valid() {
		return fmt.Errorf("report %s: invalid game %q", d.Name, d.Game)
	}
	if strings.TrimSpace(d.Schedule) == "" {
		return fmt.Errorf("report %s: schedule is required", d.Name)
	}
	if d.Lookback <= 0 {
		return fmt.Errorf("report %s: lookback must be > 0", d.Name)
	}
	return nil
}

// Window is the aggregation range of one report run.
type Window struct {
	Name       string
	Start      time.Time
	End        time.Time
	Game       game.ID
	Recipients []string
}

func (d Definition) WindowEndingAt(end time.Time) Window {
	end = end.UTC()
	return Window{
		Name:       d.Name,
		Start:      end.Add(-d.Lookback),
		End:        end,
		Game:       d.Game,
		Recipients: append([]string(nil), d.Recipients...),
	}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Delta is the change of one player over a window. Nil RankDelta and
// MetricDeltas mean there was nothing to compare.
type Delta struct {
	Player        player.Identity
	Game          game.ID
	Window        Window
	From          *snapshot.Snapshot
	To            *snapshot.Snapshot
	RankDelta     *game.RankDelta
	MetricDeltas  map[string]float64
	Streak        int
	SnapshotCount int
	Note          string
}

func (d Delta) HasData() bool {
	return d.RankDelta != nil
}

// Field is one named block of a formatted report entry.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Entry is the rendering of one Delta.
type Entry struct {
	Title  string
	Lines  []string
	Fields []Field
	// Movement is up, down or none.
	Movement string
}

// Formatted is a channel agnostic rendered report.
type Formatted struct {
	Title       string
	Description string
	Entries     []Entry
	GeneratedAt time.Time
}

func (f Formatted) PlainText() string {
	var b strings.Builder
	b.WriteString(f.Title)
	if f.Description != "" {
		b.WriteString("\n")
		b.WriteString(f.Description)
	}
	for _, e := range f.Entries {
		b.WriteString("\n\n")
		b.WriteString(e.Title)
		for _, line := range e.Lines {
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	return b.String()
}
