package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PostPilotAPI/models"
	"PostPilotAPI/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// instagramScheduleLead is the minimum interval Instagram accepts between
// submitting a scheduled container and its publish time.
const instagramScheduleLead = 13 * time.Minute

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	var post models.Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if post.Content == "" && len(post.MediaIDs) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Content or media is required")
		return
	}

	if len(post.Platforms) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "At least one platform is required")
		return
	}
	for _, platform := range post.Platforms {
		if !isKnownPlatform(platform) {
			utils.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown platform: %s", platform))
			return
		}
	}

	if len(post.MediaIDs) > 0 {
		mediaList, err := h.db.GetMediaByIDs(post.MediaIDs)
		if err != nil || len(mediaList) != len(post.MediaIDs) {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid media IDs")
			return
		}

		for _, media := range mediaList {
			if media.UserID != userID {
				utils.RespondWithError(w, http.StatusForbidden, "Access denied to media")
				return
			}
		}

		post.Media = mediaList
	}

	if msg := validatePostShape(&post); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	if post.PostType == "" {
		post.PostType = models.PostTypeNormal
	}
	post.ID = uuid.New().String()
	post.UserID = userID
	post.CreatedAt = time.Now()
	post.UpdatedAt = time.Now()

	if post.ScheduledFor != nil && post.ScheduledFor.After(time.Now()) {
		post.Status = models.StatusScheduled
		if err := h.db.CreatePost(&post); err != nil {
			utils.RespondWithError(w, http.StatusInternalServerError, "Error creating post")
			return
		}
		utils.RespondWithJSON(w, http.StatusCreated, post)
		return
	}

	post.Status = models.StatusDraft
	if err := h.db.CreatePost(&post); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error creating post")
		return
	}

	results := h.publisher.PublishPost(&post)
	utils.RespondWithJSON(w, http.StatusCreated, models.PublishResponse{
		PostID:  post.ID,
		Results: results,
	})
}

// validatePostShape rejects requests the platforms are known to refuse,
// before any network call or database write commits the publish.
func validatePostShape(post *models.Post) string {
	for _, platform := range post.Platforms {
		if platform != models.Instagram {
			continue
		}
		if len(post.Media) > 1 && post.HasVideo() && post.VideoCount() < len(post.Media) {
			return "Instagram carousels cannot mix images and videos"
		}
		if post.ScheduledFor != nil && time.Until(*post.ScheduledFor) < instagramScheduleLead {
			return fmt.Sprintf("Instagram posts must be scheduled at least %d minutes in advance", int(instagramScheduleLead.Minutes()))
		}
	}
	return ""
}

func isKnownPlatform(platform models.Platform) bool {
	for _, p := range models.AllPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

func (h *Handler) GetPosts(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)

	posts, err := h.db.GetUserPosts(userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error fetching posts")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	vars := mux.Vars(r)
	postID := vars["id"]

	post, err := h.db.GetPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}

	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}

	results, err := h.db.GetPublishResults(postID)
	if err == nil && len(results) > 0 {
		utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"post":    post,
			"results": results,
		})
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, post)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(string)
	vars := mux.Vars(r)
	postID := vars["id"]

	post, err := h.db.GetPost(postID)
	if err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if post.UserID != userID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied")
		return
	}
	if post.Status == models.StatusPublishing {
		utils.RespondWithError(w, http.StatusConflict, "Post is currently being published")
		return
	}

	if err := h.db.DeletePost(postID, userID); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Error deleting post")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}
