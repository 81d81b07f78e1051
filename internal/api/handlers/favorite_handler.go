package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/services"
)

// FavoriteHandler serves the caller's bookmarked properties.
type FavoriteHandler struct {
	favorites services.IFavoriteService
}

func NewFavoriteHandler(favorites services.IFavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

// List handles GET /me/favorites.
func (h *FavoriteHandler) List(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	favorites, err := h.favorites.List(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": favorites})
}

// Add handles POST /me/favorites/:propertyId.
func (h *FavoriteHandler) Add(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	propertyID, ok := pathID(c, "propertyId", "property")
	if !ok {
		return
	}
	favorite, err := h.favorites.Add(c.Request.Context(), actor.UserID, propertyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, favorite)
}

// Remove handles DELETE /me/favorites/:propertyId.
func (h *FavoriteHandler) Remove(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	propertyID, ok := pathID(c, "propertyId", "property")
	if !ok {
		return
	}
	if err := h.favorites.Remove(c.Request.Context(), actor.UserID, propertyID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Removed from favorites"})
}
