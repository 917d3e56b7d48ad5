package httpapi

import (
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/report"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

type rankDTO struct {
	Tier     string `json:"tier"`
	Division string `json:"division,omitempty"`
	Rating   int    `json:"rating"`
	Label    string `json:"label"`
}

type snapshotDTO struct {
	ID          string             `json:"id"`
	Game        string             `json:"game"`
	ExternalID  string             `json:"externalId"`
	DisplayName string             `json:"displayName,omitempty"`
	CapturedAt  time.Time          `json:"capturedAt"`
	Rank        rankDTO            `json:"rank"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

type ingestionResultDTO struct {
	CycleID     string    `json:"cycleId"`
	AttemptedAt time.Time `json:"attemptedAt"`
	Attempts    int       `json:"attempts"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	ErrorKind   string    `json:"errorKind,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

type playerLatestDTO struct {
	Snapshot    snapshotDTO         `json:"snapshot"`
	LastAttempt *ingestionResultDTO `json:"lastAttempt,omitempty"`
}

type snapshotListDTO struct {
	Game       string        `json:"game"`
	ExternalID string        `json:"externalId"`
	From       time.Time     `json:"from"`
	To         time.Time     `json:"to"`
	Items      []snapshotDTO `json:"items"`
}

type reportFieldDTO struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type reportEntryDTO struct {
	Title    string           `json:"title"`
	Movement string           `json:"movement"`
	Lines    []string         `json:"lines,omitempty"`
	Fields   []reportFieldDTO `json:"fields,omitempty"`
}

type reportPreviewDTO struct {
	Name        string           `json:"name"`
	Game        string           `json:"game"`
	WindowStart time.Time        `json:"windowStart"`
	WindowEnd   time.Time        `json:"windowEnd"`
	Players     int              `json:"players"`
	Recipients  []string         `json:"recipients"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Entries     []reportEntryDTO `json:"entries"`
	Text        string           `json:"text"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

type jobDispatchDTO struct {
	Job    string `json:"job"`
	Status string `json:"status"`
}

type jobStatusDTO struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	NextRun time.Time `json:"nextRun"`
	Running bool      `json:"running"`
}

type internalJobReportRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

func rankToDTO(rank game.Rank) rankDTO {
	return rankDTO{
		Tier:     rank.Tier,
		Division: rank.Division,
		Rating:   rank.Rating,
		Label:    rank.String(),
	}
}

func snapshotToDTO(item snapshot.Snapshot) snapshotDTO {
	return snapshotDTO{
		ID:          item.ID,
		Game:        string(item.Player.Game),
		ExternalID:  item.Player.ExternalID,
		DisplayName: item.Player.DisplayName,
		CapturedAt:  item.CapturedAt.UTC(),
		Rank:        rankToDTO(item.Rank),
		Metrics:     item.Metrics,
	}
}

func ingestionResultToDTO(item ingestion.Result) *ingestionResultDTO {
	return &ingestionResultDTO{
		CycleID:     item.CycleID,
		AttemptedAt: item.AttemptedAt.UTC(),
		Attempts:    item.Attempts,
		Status:      string(item.Outcome.Status),
		Reason:      string(item.Outcome.Reason),
		ErrorKind:   string(item.Outcome.ErrorKind),
		Detail:      item.Outcome.Detail,
	}
}

func playerLatestToDTO(item usecase.PlayerLatest) playerLatestDTO {
	out := playerLatestDTO{Snapshot: snapshotToDTO(item.Snapshot)}
	if item.LastAttempt != nil {
		out.LastAttempt = ingestionResultToDTO(*item.LastAttempt)
	}
	return out
}

func reportPreviewToDTO(result usecase.ReportRunResult, formatted report.Formatted) reportPreviewDTO {
	entries := make([]reportEntryDTO, 0, len(formatted.Entries))
	for _, entry := range formatted.Entries {
		fields := make([]reportFieldDTO, 0, len(entry.Fields))
		for _, field := range entry.Fields {
			fields = append(fields, reportFieldDTO{Name: field.Name, Value: field.Value, Inline: field.Inline})
		}
		entries = append(entries, reportEntryDTO{
			Title:    entry.Title,
			Movement: entry.Movement,
			Lines:    entry.Lines,
			Fields:   fields,
		})
	}

	return reportPreviewDTO{
		Name:        result.Name,
		Game:        string(result.Game),
		WindowStart: result.Window.Start,
		WindowEnd:   result.Window.End,
		Players:     result.Players,
		Recipients:  result.Window.Recipients,
		Title:       formatted.Title,
		Description: formatted.Description,
		Entries:     entries,
		Text:        formatted.PlainText(),
		GeneratedAt: formatted.GeneratedAt,
	}
}

func jobStatusesToDTO(items []usecase.JobStatus) []jobStatusDTO {
	out := make([]jobStatusDTO, 0, len(items))
	for _, item := range items {
		out = append(out, jobStatusDTO{
			Name:    item.Name,
			Kind:    item.Kind,
			NextRun: item.NextRun.UTC(),
			Running: item.Running,
		})
	}
	return out
}
