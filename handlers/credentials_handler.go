package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PostPilotAPI/models"
	"PostPilotAPI/utils"

	"github.com/google/uuid"
)

type saveCredentialsRequest struct {
	Platform       models.Platform `json:"platform"`
	AccessToken    string          `json:"access_token"`
	RefreshToken   string          `json:"refresh_token"`
	OAuth1Token    string          `json:"oauth1_token"`
	Secret         string          `json:"secret"`
	TokenType      string          `json:"token_type"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	PlatformUserID string          `json:"platform_user_id"`
	PlatformPageID string          `json:"platform_page_id"`
	BusinessID     string          `json:"business_id"`
	OrganizationID string          `json:"organization_id"`
}

// SaveCredentials stores already-acquired platform tokens for the
// authenticated user. Token acquisition itself happens outside this API.
func (h *Handler) SaveCredentials(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var req saveCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.Platform == "" || req.AccessToken == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Platform and access_token are required")
		return
	}
	if !isKnownPlatform(req.Platform) {
		utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown platform: %s", req.Platform))
		return
	}

	now := time.Now()
	cred := &models.PlatformCredentials{
		ID:             uuid.New().String(),
		UserID:         userID,
		Platform:       req.Platform,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		OAuth1Token:    req.OAuth1Token,
		Secret:         req.Secret,
		TokenType:      req.TokenType,
		ExpiresAt:      req.ExpiresAt,
		PlatformUserID: req.PlatformUserID,
		PlatformPageID: req.PlatformPageID,
		BusinessID:     req.BusinessID,
		OrganizationID: req.OrganizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cred.TokenType == "" {
		cred.TokenType = "Bearer"
	}

	if err := h.db.SaveCredentials(cred); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error saving credentials")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Credentials saved successfully",
	})
}

// GetConnectedPlatforms reports, for every supported platform, whether the
// user has a stored credential and when it expires.
func (h *Handler) GetConnectedPlatforms(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	creds, err := h.db.GetUserCredentials(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching credentials")
		return
	}

	type connectedPlatform struct {
		Platform  models.Platform `json:"platform"`
		Connected bool            `json:"connected"`
		ExpiresAt *time.Time      `json:"expires_at,omitempty"`
		CreatedAt *time.Time      `json:"created_at,omitempty"`
	}

	connectedMap := make(map[models.Platform]*models.PlatformCredentials, len(creds))
	for _, cred := range creds {
		connectedMap[cred.Platform] = cred
	}

	platforms := make([]connectedPlatform, 0, len(models.AllPlatforms))
	for _, platform := range models.AllPlatforms {
		entry := connectedPlatform{Platform: platform}
		if cred, ok := connectedMap[platform]; ok {
			entry.Connected = true
			entry.ExpiresAt = cred.ExpiresAt
			entry.CreatedAt = &cred.CreatedAt
		}
		platforms = append(platforms, entry)
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"platforms": platforms,
	})
}

// DisconnectPlatform removes the stored credential for one platform.
func (h *Handler) DisconnectPlatform(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var req struct {
		Platform models.Platform `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if _, err := h.db.GetCredentials(userID, req.Platform); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Platform was not connected")
		return
	}

	if err := h.db.DeleteCredentials(userID, req.Platform); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error disconnecting platform")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s disconnected successfully", req.Platform),
	})
}
