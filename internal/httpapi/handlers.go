package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/sekiba/kifuroom/internal/version"
	"github.com/sekiba/kifuroom/pkg/codec"
	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/sekiba/kifuroom/pkg/shogi"
	"github.com/sekiba/kifuroom/pkg/tree"
	"github.com/tigerwill90/fox"
)

type healthzResponse struct {
	Status        string `json:"status"`
	EngineStatus  string `json:"engine_status"`
	ServerVersion string `json:"server_version"`
}

func (s *Server) handleHealthz(c *fox.Context) {
	writeJSON(c, http.StatusOK, healthzResponse{
		Status:        "ok",
		EngineStatus:  s.sync.EngineStatus(),
		ServerVersion: version.Server.String(),
	})
}

type gameSummaryDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type listGamesResponse struct {
	Games []gameSummaryDTO `json:"games"`
	Total int              `json:"total"`
}

// handleListGames serves GET /api/games?limit=&offset=. limit defaults to
// 50 and is capped at 100 per spec §6.
func (s *Server) handleListGames(c *fox.Context) {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if limit > 100 {
		limit = 100
	}
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(c, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	summaries, total, err := s.store.ListGames(c.Request().Context(), limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	games := make([]gameSummaryDTO, 0, len(summaries))
	for _, g := range summaries {
		games = append(games, gameSummaryDTO{
			ID: g.ID, Title: g.Title,
			CreatedAt: g.CreatedAt.Format(timeLayout), UpdatedAt: g.UpdatedAt.Format(timeLayout),
		})
	}
	writeJSON(c, http.StatusOK, listGamesResponse{Games: games, Total: total})
}

type createGameRequest struct {
	Title       string `json:"title"`
	InitialSFEN string `json:"initial_sfen"`
}

type createGameResponse struct {
	GameID string `json:"game_id"`
}

// handleCreateGame serves POST /api/games: an empty game, independent of
// whatever game the Synchronizer currently has loaded over the websocket.
func (s *Server) handleCreateGame(c *fox.Context) {
	var req createGameRequest
	if !decodeJSONBody(c, &req) {
		return
	}
	initial := req.InitialSFEN
	if initial == "" {
		initial = shogi.Initial
	}
	title := req.Title
	if title == "" {
		title = "Untitled"
	}

	t := tree.New(title, initial)
	if err := s.store.PutGame(c.Request().Context(), t.Game(), t.Nodes()); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, createGameResponse{GameID: t.Game().ID})
}

// handleGetGame serves GET /api/games/{id}: the full persisted tree.
func (s *Server) handleGetGame(c *fox.Context) {
	id := c.Param("id")
	game, nodes, err := s.store.GetGameWithTree(c.Request().Context(), id)
	if err != nil {
		writeKifuErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, struct {
		Game  any `json:"game"`
		Nodes any `json:"nodes"`
	}{Game: game, Nodes: nodes})
}

type updateGameRequest struct {
	Title string            `json:"title"`
	Meta  map[string]string `json:"meta"`
}

// handleUpdateGame serves PUT /api/games/{id}: meta/title only, not moves.
func (s *Server) handleUpdateGame(c *fox.Context) {
	id := c.Param("id")
	var req updateGameRequest
	if !decodeJSONBody(c, &req) {
		return
	}
	game, _, err := s.store.GetGameWithTree(c.Request().Context(), id)
	if err != nil {
		writeKifuErr(c, err)
		return
	}
	if err := s.store.SetGameMeta(c.Request().Context(), id, req.Title, req.Meta, game.UIState); err != nil {
		writeKifuErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, struct{}{})
}

func (s *Server) handleDeleteGame(c *fox.Context) {
	id := c.Param("id")
	if err := s.store.DeleteGame(c.Request().Context(), id); err != nil {
		writeKifuErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, struct{}{})
}

type importRequest struct {
	Text string `json:"text"`
}

type importResponse struct {
	Format string `json:"format"`
	GameID string `json:"game_id"`
}

// handleImport serves POST /api/import: autodetect the kifu text format,
// parse into a variation tree, and persist it as a new game.
func (s *Server) handleImport(c *fox.Context) {
	var req importRequest
	if !decodeJSONBody(c, &req) {
		return
	}

	format, parsed, _, err := s.codec.Import(req.Text)
	if err != nil {
		writeKifuErr(c, err)
		return
	}

	t := codec.BuildTree(parsed)
	if err := s.store.PutGame(c.Request().Context(), t.Game(), t.Nodes()); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, importResponse{Format: string(format), GameID: t.Game().ID})
}

// handleExport serves GET /api/export/{id}?format=kif|kif2|usi as a text
// download.
func (s *Server) handleExport(c *fox.Context) {
	id := c.Param("id")
	format := codec.Format(c.QueryParam("format"))
	if format != codec.KIF && format != codec.KIF2 && format != codec.USI {
		writeError(c, http.StatusBadRequest, "unsupported format")
		return
	}

	game, nodes, err := s.store.GetGameWithTree(c.Request().Context(), id)
	if err != nil {
		writeKifuErr(c, err)
		return
	}
	t := tree.Load(game, nodes)
	parsed := codec.ExportGame(t)
	text, err := s.codec.Emit(format, parsed, codec.EmitOptions{})
	if err != nil {
		writeKifuErr(c, err)
		return
	}

	c.SetHeader("Content-Disposition", `attachment; filename="`+id+`.`+string(format)+`"`)
	_ = c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// handleWebsocket serves GET /ws: upgrades and hands the connection's
// lifecycle and frames to the Synchronizer.
func (s *Server) handleWebsocket(c *fox.Context) {
	ctx := c.Request().Context()
	err := s.hub.Upgrade(ctx, c.Writer(), c.Request(), s.sync.NotifyConnected, s.sync.HandleMessage, s.sync.NotifyDisconnected)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// maxImportBytes bounds request bodies to keep parse cost bounded, per
// spec §5 ("HTTP import body capped (e.g., 2 MiB)"). It applies to every
// JSON body, not just /api/import, since none of them have any reason to
// be larger.
const maxImportBytes = 2 << 20 // 2 MiB

func decodeJSONBody(c *fox.Context, dst any) bool {
	defer c.Request().Body.Close()
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBytes+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, "read request body: "+err.Error())
		return false
	}
	if len(body) > maxImportBytes {
		writeKifuErr(c, kifuerr.New(kifuerr.TooLarge, "request body exceeds %v bytes", maxImportBytes))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(c, http.StatusBadRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(c *fox.Context, code int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	_ = c.Blob(code, "application/json", raw)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(c *fox.Context, code int, detail string) {
	writeJSON(c, code, errorResponse{Detail: detail})
}

// writeKifuErr maps a kifuerr.Kind to the HTTP status the external
// interface table calls for: NotFound -> 404, Malformed/UnsupportedFormat
// -> 400, TooLarge -> 413, anything else -> 500.
func writeKifuErr(c *fox.Context, err error) {
	kind, ok := kifuerr.KindOf(err)
	if !ok {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	switch kind {
	case kifuerr.NotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case kifuerr.Malformed, kifuerr.UnsupportedFormat:
		writeError(c, http.StatusBadRequest, err.Error())
	case kifuerr.TooLarge:
		writeError(c, http.StatusRequestEntityTooLarge, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, err.Error())
	}
}
