package server

import (
	"encoding/json"
	"net/http"

	"youbble/model"
	"youbble/repository"

	"github.com/gorilla/mux"
)

// SiteHandler 处理厂牌站点的目录与投递接口
type SiteHandler struct {
	catalog *repository.CatalogRepository
	inbox   repository.InboxRepository
}

// NewSiteHandler 创建 SiteHandler 实例
func NewSiteHandler(catalog *repository.CatalogRepository, inbox repository.InboxRepository) *SiteHandler {
	return &SiteHandler{catalog: catalog, inbox: inbox}
}

// Register mounts the label routes on the /api subrouter r.
func (h *SiteHandler) Register(r *mux.Router) {
	r.HandleFunc("/demos", h.CreateDemoHandler).Methods(http.MethodPost)
	r.HandleFunc("/collaborations", h.CreateCollaborationHandler).Methods(http.MethodPost)
	r.HandleFunc("/releases", h.ReleasesHandler).Methods(http.MethodGet)
	r.HandleFunc("/releases/featured", h.FeaturedReleasesHandler).Methods(http.MethodGet)
	r.HandleFunc("/merch", h.MerchHandler).Methods(http.MethodGet)
	r.HandleFunc("/podcasts", h.PodcastsHandler).Methods(http.MethodGet)
	r.HandleFunc("/podcasts/latest", h.LatestPodcastHandler).Methods(http.MethodGet)
}

type inboxFailure struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Errors  []model.FieldError `json:"errors,omitempty"`
}

// CreateDemoHandler 保存艺人 demo 投递
func (h *SiteHandler) CreateDemoHandler(w http.ResponseWriter, r *http.Request) {
	var demo model.DemoSubmission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&demo); err != nil {
		writeJSON(w, http.StatusBadRequest, inboxFailure{Message: "Invalid request body"})
		return
	}
	if errs := demo.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, inboxFailure{Message: "Validation error", Errors: errs})
		return
	}

	saved, err := h.inbox.CreateDemo(r.Context(), demo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"submission": saved,
	})
}

// CreateCollaborationHandler 保存合作请求
func (h *SiteHandler) CreateCollaborationHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CollaborationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, inboxFailure{Message: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, inboxFailure{Message: "Validation error", Errors: errs})
		return
	}

	saved, err := h.inbox.CreateCollaboration(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"request": saved,
	})
}

func (h *SiteHandler) ReleasesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Releases())
}

func (h *SiteHandler) FeaturedReleasesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Featured())
}

func (h *SiteHandler) MerchHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Merch())
}

func (h *SiteHandler) PodcastsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Podcasts())
}

func (h *SiteHandler) LatestPodcastHandler(w http.ResponseWriter, r *http.Request) {
	episode, err := h.catalog.LatestPodcast()
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No episodes found"})
		return
	}
	writeJSON(w, http.StatusOK, episode)
}
