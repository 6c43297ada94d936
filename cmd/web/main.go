// Web server exposing the contract-creation wizard as a JSON API using the
// Gin framework. All state changes go through the controller so the wizard
// gates hold no matter which client calls in.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gokkuu100/wakiliweb-sub002/internal/assist"
	"github.com/gokkuu100/wakiliweb-sub002/internal/clause"
	"github.com/gokkuu100/wakiliweb-sub002/internal/config"
	"github.com/gokkuu100/wakiliweb-sub002/internal/controller"
	"github.com/gokkuu100/wakiliweb-sub002/internal/datastore"
	"github.com/gokkuu100/wakiliweb-sub002/internal/gate"
	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/store"
)

var (
	manager  *controller.Manager
	resolver datastore.IdentityResolver
)

func main() {
	addr := flag.String("addr", ":8181", "Listen address")
	sessionTTL := flag.Duration("session-ttl", 2*time.Hour, "Idle session expiry")
	flag.Parse()

	ctx := context.Background()

	pol, err := policy.Load(config.GetPolicyPath())
	if err != nil {
		log.Fatalf("loading clause policy: %v", err)
	}

	backend, err := store.Open(ctx, config.GetDataStoreConfig())
	if err != nil {
		log.Fatalf("opening draft store: %v", err)
	}
	defer backend.Close()
	resolver = backend

	assistant, err := assist.NewGeminiAssistant(ctx, config.GetAPIKey())
	if err != nil {
		log.Fatalf("initializing assistant: %v", err)
	}
	defer assistant.Close()

	var a assist.Assistant
	if assistant != nil {
		a = assistant
	} else {
		log.Printf("no Gemini API key configured; AI assistance disabled")
	}
	manager = controller.NewManager(pol, a, backend)

	go func() {
		for range time.Tick(15 * time.Minute) {
			if n := manager.CleanupExpired(*sessionTTL); n > 0 {
				log.Printf("expired %d idle session(s)", n)
			}
		}
	}()

	// Use release mode in production
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/healthz", handleHealth)

	api := r.Group("/api")
	{
		api.POST("/drafts", handleCreateDraft)
		api.GET("/drafts", handleListDrafts)
		api.GET("/drafts/:id", handleGetDraft)
		api.POST("/drafts/:id/fields", handleSetField)
		api.POST("/drafts/:id/clauses/:key/toggle", handleToggleClause)
		api.POST("/drafts/:id/clauses/:key/complete", handleCompleteClause)
		api.GET("/drafts/:id/clauses/:key/text", handleRenderClause)
		api.POST("/drafts/:id/advance", handleAdvance)
		api.POST("/drafts/:id/retreat", handleRetreat)
		api.POST("/drafts/:id/assist", handleAssist)
		api.POST("/drafts/:id/save", handleSave)
		api.DELETE("/drafts/:id/session", handleCloseSession)

		api.GET("/parties/:appId", handleResolveParty)
	}

	log.Printf("Starting wizard API on %s", *addr)
	if err := r.Run(*addr); err != nil {
		log.Fatal(err)
	}
}

// corsMiddleware adds CORS headers for cross-origin requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": manager.Count()})
}

func handleCreateDraft(c *gin.Context) {
	session, err := manager.CreateDraft(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"draft_id":     session.DraftID,
		"current_step": session.CurrentStep().String(),
	})
}

func handleListDrafts(c *gin.Context) {
	infos, err := manager.ListDrafts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": infos})
}

func handleGetDraft(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	snapshot, err := session.Snapshot()
	if err != nil {
		writeError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Write(snapshot)
}

type setFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

func handleSetField(c *gin.Context) {
	var req setFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := session.SetField(req.Field, req.Value); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "field": req.Field})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"compliance":        session.Compliance(),
		"validation_errors": session.ValidationErrors(),
	})
}

func handleToggleClause(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := session.ToggleClause(c.Param("key")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compliance": session.Compliance()})
}

func handleCompleteClause(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := session.MarkClauseComplete(c.Param("key")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compliance": session.Compliance()})
}

func handleRenderClause(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	text, err := session.RenderClause(c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clause": c.Param("key"), "text": text})
}

func handleAdvance(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	step, err := session.Advance(c.Request.Context())
	if err != nil {
		var result gate.Result
		if errors.As(err, &result) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"gate": result})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_step": step.String()})
}

func handleRetreat(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	step, err := session.Retreat()
	if err != nil {
		var result gate.Result
		if errors.As(err, &result) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"gate": result})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_step": step.String()})
}

type assistRequest struct {
	Context string `json:"context" binding:"required"`
}

func handleAssist(c *gin.Context) {
	var req assistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	report, err := session.RequestAssist(c.Request.Context(), req.Context)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "compliance": session.Compliance()})
}

func handleSave(c *gin.Context) {
	session, err := manager.OpenDraft(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if err := session.Save(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

func handleCloseSession(c *gin.Context) {
	manager.CloseDraft(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func handleResolveParty(c *gin.Context) {
	party, err := resolver.ResolveParty(c.Request.Context(), c.Param("appId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, party)
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, datastore.ErrDraftNotFound), errors.Is(err, datastore.ErrPartyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, controller.ErrRequestInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, assist.ErrAssistanceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, clause.ErrMandatoryClauseLocked), errors.Is(err, clause.ErrUnknownClause):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, controller.ErrSaveFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
