// Package httpapi is the HTTP surface (spec §6): game CRUD, kifu
// import/export, liveness, and the /ws upgrade that hands a connection off
// to internal/wsconn and internal/sync. It knows the wire shapes but no
// session mechanics of its own. Game create/update/delete and import write
// to the store directly: they do not pass through the Synchronizer and do
// not change the game it currently has loaded.
package httpapi

import (
	"net/http"

	"github.com/sekiba/kifuroom/internal/sync"
	"github.com/sekiba/kifuroom/internal/version"
	"github.com/sekiba/kifuroom/internal/wsconn"
	"github.com/sekiba/kifuroom/pkg/codec"
	"github.com/sekiba/kifuroom/pkg/store"
	"github.com/tigerwill90/fox"
)

// Server bundles the dependencies every handler needs.
type Server struct {
	store *store.Store
	hub   *wsconn.Hub
	sync  *sync.Synchronizer
	codec *codec.Registry
}

// New builds the router, registering every route in the external interface
// table. st and hub are the same instances cmd/kifuroom wires into sync.
func New(st *store.Store, hub *wsconn.Hub, synchronizer *sync.Synchronizer) *fox.Router {
	s := &Server{store: st, hub: hub, sync: synchronizer, codec: codec.NewRegistry()}

	r := fox.MustRouter(
		fox.WithNoRouteHandler(s.notFound),
		fox.WithNoMethod(true),
	)

	r.MustAdd([]string{http.MethodGet}, "/healthz", s.handleHealthz)
	r.MustAdd([]string{http.MethodGet}, "/api/games", s.handleListGames)
	r.MustAdd([]string{http.MethodPost}, "/api/games", s.handleCreateGame)
	r.MustAdd([]string{http.MethodGet}, "/api/games/{id}", s.handleGetGame)
	r.MustAdd([]string{http.MethodPut}, "/api/games/{id}", s.handleUpdateGame)
	r.MustAdd([]string{http.MethodDelete}, "/api/games/{id}", s.handleDeleteGame)
	r.MustAdd([]string{http.MethodPost}, "/api/import", s.handleImport)
	r.MustAdd([]string{http.MethodGet}, "/api/export/{id}", s.handleExport)
	r.MustAdd([]string{http.MethodGet}, "/ws", s.handleWebsocket)

	return r
}

func (s *Server) notFound(c *fox.Context) {
	writeError(c, http.StatusNotFound, "route not found")
}
