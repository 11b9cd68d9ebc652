// Package handler exposes the chain over HTTP with Gin.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/jmerrifield20/powchain/internal/identity"
	"go.uber.org/zap"
)

// chainStore is the subset of *chain.Chain the handler needs.
type chainStore interface {
	Len() int
	Get(i int) (chain.Record, error)
	Tip() (chain.Record, error)
	Records() []chain.Record
	Conforming() int
	Config() chain.Config
	Verify() error
	AppendPayload(payload string) (chain.Record, chain.SearchResult, error)
}

// ChainHandler serves read and append endpoints for a chain.
type ChainHandler struct {
	chain  chainStore
	logger *zap.Logger
}

// NewChainHandler creates a new ChainHandler.
func NewChainHandler(c chainStore, logger *zap.Logger) *ChainHandler {
	return &ChainHandler{chain: c, logger: logger}
}

// Register mounts the chain routes on the given router group. writeAuth is
// applied to the append route only.
func (h *ChainHandler) Register(rg *gin.RouterGroup, writeAuth ...gin.HandlerFunc) {
	g := rg.Group("/chain")
	{
		g.GET("", h.Overview)
		g.GET("/verify", h.Verify)
		g.GET("/records", h.ListRecords)
		g.GET("/records/:idx", h.GetRecord)
		g.POST("/records", append(writeAuth, h.AppendRecord)...)
	}
}

// Overview handles GET /chain and returns length, tip digest and mining parameters.
func (h *ChainHandler) Overview(c *gin.Context) {
	tip, err := h.chain.Tip()
	if err != nil {
		h.logger.Error("chain Tip", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query chain"})
		return
	}
	cfg := h.chain.Config()

	c.JSON(http.StatusOK, gin.H{
		"length":      h.chain.Len(),
		"tip":         tip.Digest,
		"conforming":  h.chain.Conforming(),
		"difficulty":  cfg.Difficulty,
		"attempt_cap": cfg.AttemptCap,
		"algorithm":   cfg.Algorithm,
	})
}

// Verify handles GET /chain/verify by walking the full chain.
func (h *ChainHandler) Verify(c *gin.Context) {
	if err := h.chain.Verify(); err != nil {
		h.logger.Warn("chain integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ListRecords handles GET /chain/records.
func (h *ChainHandler) ListRecords(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"records": h.chain.Records()})
}

// GetRecord handles GET /chain/records/:idx and returns a single record.
func (h *ChainHandler) GetRecord(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	rec, err := h.chain.Get(idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type appendRequest struct {
	Payload string `json:"payload" binding:"required,max=4096"`
}

// AppendRecord handles POST /chain/records and mines the payload onto the tip.
func (h *ChainHandler) AppendRecord(c *gin.Context) {
	var req appendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, res, err := h.chain.AppendPayload(req.Payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chain.ErrEmptyChain) {
			status = http.StatusConflict
		}
		h.logger.Error("chain Append", zap.Error(err))
		c.JSON(status, gin.H{"error": "failed to append record"})
		return
	}
	SetChainLength(h.chain.Len())

	fields := []zap.Field{
		zap.Uint32("index", rec.Index),
		zap.String("outcome", res.Outcome.String()),
		zap.Uint64("attempts", res.Attempts),
	}
	if claims := identity.ClaimsFromCtx(c); claims != nil {
		fields = append(fields, zap.String("subject", claims.Subject))
	}
	h.logger.Info("record appended", fields...)
	c.JSON(http.StatusCreated, gin.H{
		"record":   rec,
		"outcome":  res.Outcome,
		"attempts": res.Attempts,
	})
}
