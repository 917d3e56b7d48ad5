package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/rank-tracker/internal/domain/game"
	"github.com/riskibarqy/rank-tracker/internal/usecase"
)

func (h *Handler) GetPlayerLatest(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetPlayerLatest")
	defer span.End()

	gameParam := r.PathValue("game")
	externalID := r.PathValue("externalId")

	item, err := h.queries.Latest(ctx, gameParam, externalID)
	if err != nil {
		h.logger.WarnContext(ctx, "get player latest failed", "game", gameParam, "external_id", externalID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, playerLatestToDTO(item))
}

func (h *Handler) ListPlayerSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListPlayerSnapshots")
	defer span.End()

	gameParam := r.PathValue("game")
	externalID := r.PathValue("externalId")

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	items, err := h.queries.Range(ctx, gameParam, externalID, from, to)
	if err != nil {
		h.logger.WarnContext(ctx, "list player snapshots failed", "game", gameParam, "external_id", externalID, "error", err)
		writeError(ctx, w, err)
		return
	}

	out := snapshotListDTO{
		ExternalID: strings.TrimSpace(externalID),
		From:       from,
		To:         to,
		Items:      make([]snapshotDTO, 0, len(items)),
	}
	if id, err := game.ParseID(gameParam); err == nil {
		out.Game = string(id)
	}
	for _, item := range items {
		out.Items = append(out.Items, snapshotToDTO(item))
	}
	if len(items) > 0 {
		if out.From.IsZero() {
			out.From = items[0].CapturedAt.UTC()
		}
		if out.To.IsZero() {
			out.To = items[len(items)-1].CapturedAt.UTC()
		}
	}

	writeSuccess(ctx, w, http.StatusOK, out)
}

// parseTimeQuery accepts RFC3339 timestamps or unix seconds. A missing value
// yields the zero time.
func parseTimeQuery(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: query %s must be RFC3339 or unix seconds", usecase.ErrInvalidInput, name)
}
