package gossip

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/vespo92/rhizome/pkg/status"
)

// Status exposes the engine state on the admin status API.
type Status struct {
	engine *Engine
}

func NewStatus(engine *Engine) *Status {
	return &Status{
		engine: engine,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/peers", s.listPeersRoute)
	group.GET("/buffer", s.listBufferRoute)
	group.GET("/stats", s.statsRoute)
}

func (s *Status) listBufferRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Buffer())
}

func (s *Status) listPeersRoute(c *gin.Context) {
	peers := s.engine.Peers()
	// Sort by peer ID.
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ID < peers[j].ID
	})
	c.JSON(http.StatusOK, peers)
}

func (s *Status) statsRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

var _ status.Handler = &Status{}
