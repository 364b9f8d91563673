package server

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"youbble/core/apperr"
	"youbble/core/intake"
	"youbble/core/payment"
	"youbble/core/rules"
	"youbble/logger"
	"youbble/repository"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
)

const (
	// multipart parts beyond the audio cap: consent document plus text fields
	formOverheadBytes = 16 << 20
	multipartMemory   = 8 << 20
)

// CompetitionHandler 处理比赛投稿相关请求
type CompetitionHandler struct {
	pipeline *intake.Pipeline
	entries  repository.EntryRepository
	gate     *payment.Gate
	fees     rules.FeeSchedule
}

// NewCompetitionHandler 创建 CompetitionHandler 实例
func NewCompetitionHandler(pipeline *intake.Pipeline, entries repository.EntryRepository, gate *payment.Gate, fees rules.FeeSchedule) *CompetitionHandler {
	return &CompetitionHandler{pipeline: pipeline, entries: entries, gate: gate, fees: fees}
}

// Register mounts the competition routes on r.
func (h *CompetitionHandler) Register(r *mux.Router) {
	r.HandleFunc("/payment-intent", h.PaymentIntentHandler).Methods(http.MethodPost)
	r.HandleFunc("/submit", h.SubmitHandler).Methods(http.MethodPost)
	r.HandleFunc("/entries", h.ListEntriesHandler).Methods(http.MethodGet)
	r.HandleFunc("/entry/{id}", h.GetEntryHandler).Methods(http.MethodGet)
	r.HandleFunc("/fees", h.FeesHandler).Methods(http.MethodGet)
}

type paymentIntentRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// PaymentIntentHandler 为报名费创建支付意图
func (h *CompetitionHandler) PaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	var req paymentIntentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.InvalidAmount, "request body must be JSON with a numeric amount", err))
		return
	}

	intent, err := h.gate.CreateIntent(r.Context(), req.Amount, req.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

type submitResponse struct {
	OK bool `json:"ok"`
	intake.Receipt
}

// SubmitHandler 接收 multipart 投稿表单
func (h *CompetitionHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	policy := h.pipeline.Policy()
	// 截止时间先于读取请求体判断
	if err := rules.CheckDeadline(start, policy.Deadline); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, policy.MaxAudioBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, apperr.Wrap(apperr.AudioTooLarge,
				"Audio must be "+humanize.IBytes(uint64(policy.MaxAudioBytes))+" or less", err))
			return
		}
		writeError(w, r, apperr.Wrap(apperr.InvalidForm, "Submission must be a multipart form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	sub := intake.Submission{
		ArtistName:          r.FormValue("artistName"),
		Email:               r.FormValue("email"),
		SongTitle:           r.FormValue("songTitle"),
		StreamURL:           r.FormValue("streamUrl"),
		Lyrics:              r.FormValue("lyrics"),
		Categories:          splitCategories(r.MultipartForm.Value["categories"]),
		DOB:                 r.FormValue("dob"),
		PaymentClientSecret: r.FormValue("paymentClientSecret"),
	}

	audio, closeAudio, err := formFile(r.MultipartForm, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer closeAudio()
	sub.Audio = audio

	consent, closeConsent, err := formFile(r.MultipartForm, "consentFile")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer closeConsent()
	sub.Consent = consent

	receipt, err := h.pipeline.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("submission handled",
		logger.String("id", receipt.ID),
		logger.Duration("elapsed", time.Since(start)))
	writeJSON(w, http.StatusCreated, submitResponse{OK: true, Receipt: receipt})
}

// ListEntriesHandler 返回全部投稿（管理用途）
func (h *CompetitionHandler) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetEntryHandler 按 ID 返回单个投稿
func (h *CompetitionHandler) GetEntryHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type feesResponse struct {
	Fees     rules.FeeSchedule `json:"fees"`
	Currency string            `json:"currency"`
	Deadline *time.Time        `json:"deadline,omitempty"`
	Quote    *rules.Quote      `json:"quote,omitempty"`
}

// FeesHandler 返回报名费表；带 categories 参数时附上报价
func (h *CompetitionHandler) FeesHandler(w http.ResponseWriter, r *http.Request) {
	resp := feesResponse{Fees: h.fees, Currency: h.gate.Currency()}
	if d := h.pipeline.Policy().Deadline; !d.IsZero() {
		resp.Deadline = &d
	}
	if raw, ok := r.URL.Query()["categories"]; ok {
		selected, err := rules.ParseCategories(splitCategories(raw))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := rules.CheckSync(selected); err != nil {
			writeError(w, r, err)
			return
		}
		q := h.fees.Quote(selected)
		resp.Quote = &q
	}
	writeJSON(w, http.StatusOK, resp)
}

// splitCategories accepts a JSON array string, a comma separated list or
// repeated values. A malformed JSON array is passed through unchanged so the
// category rule rejects it in its turn.
func splitCategories(values []string) []string {
	if len(values) != 1 {
		return values
	}
	raw := strings.TrimSpace(values[0])
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return []string{raw}
		}
		return out
	}
	return strings.Split(raw, ",")
}

// formFile opens an optional file part. The returned closer is always safe to call.
func formFile(form *multipart.Form, field string) (*intake.File, func(), error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, func() {}, nil
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, apperr.Wrap(apperr.InvalidForm, "could not read uploaded file "+field, err)
	}
	return &intake.File{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, func() { f.Close() }, nil
}
