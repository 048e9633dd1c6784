package statesync

import (
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vespo92/rhizome/pkg/status"
)

// Status exposes the store state on the admin status API.
type Status struct {
	store *Store
}

func NewStatus(store *Store) *Status {
	return &Status{
		store: store,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/entries", s.listEntriesRoute)
	group.GET("/entries/:key", s.getEntryRoute)
	group.GET("/sessions", s.listSessionsRoute)
	group.GET("/root", s.rootRoute)
}

func (s *Status) listEntriesRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Snapshot())
}

func (s *Status) getEntryRoute(c *gin.Context) {
	key := c.Param("key")
	for _, entry := range s.store.Snapshot() {
		if entry.Key == key {
			c.JSON(http.StatusOK, entry)
			return
		}
	}
	c.JSON(http.StatusNotFound, &status.ErrorInfo{
		StatusCode: http.StatusNotFound,
		Message:    "entry not found",
	})
}

func (s *Status) listSessionsRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Sessions())
}

func (s *Status) rootRoute(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"root": hex.EncodeToString(s.store.Root()),
	})
}

var _ status.Handler = &Status{}
