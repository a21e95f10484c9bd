package endpoint

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/tsengine/engine"
	apperrors "github.com/kbukum/tsengine/errors"
)

// EngineView is the part of an engine the status API needs.
type EngineView interface {
	Snapshot() engine.EngineSnapshot
	Cancel()
}

// Status returns a handler that reports the engine and every pipeline.
func Status(e EngineView) gin.HandlerFunc {
	return func(c *gin.Context) {
		RespondOK(c, e.Snapshot())
	}
}

// Pipeline returns a handler that reports the pipeline named by the :name
// path parameter, or 404.
func Pipeline(e EngineView) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		for _, p := range e.Snapshot().Pipelines {
			if p.Name == name {
				RespondOK(c, p)
				return
			}
		}
		RespondWithError(c, apperrors.NotFound("pipeline", name))
	}
}

// Cancel returns a handler that signals the engine to stop. The engine
// winds down asynchronously, so it answers 202.
func Cancel(e EngineView) gin.HandlerFunc {
	return func(c *gin.Context) {
		e.Cancel()
		RespondAccepted(c, gin.H{"cancelled": true})
	}
}
