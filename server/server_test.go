package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"youbble/core/intake"
	"youbble/core/payment"
	"youbble/core/rules"
	"youbble/model"
	"youbble/repository"
	"youbble/storage"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router  http.Handler
	ledger  repository.EntryRepository
	uploads *storage.LocalStore
}

type envOptions struct {
	deadline         time.Time
	maxAudioBytes    int64
	allowPlaceholder bool
	podcasts         []model.PodcastEpisode
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	dir := t.TempDir()

	uploads, err := storage.NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	ledger, err := repository.NewJSONEntryRepository(filepath.Join(dir, "data", "entries.json"))
	require.NoError(t, err)
	inbox, err := repository.NewJSONInboxRepository(filepath.Join(dir, "data"))
	require.NoError(t, err)

	policy := rules.DefaultPolicy()
	policy.Deadline = opts.deadline
	if opts.maxAudioBytes > 0 {
		policy.MaxAudioBytes = opts.maxAudioBytes
	}
	pipeline := intake.NewPipeline(policy, uploads, ledger)
	gate := payment.NewGate(payment.Options{AllowPlaceholder: opts.allowPlaceholder})
	catalog := repository.NewCatalog(
		[]model.Release{{ID: "r1", Title: "Night Drive", Featured: true}, {ID: "r2", Title: "Other"}},
		[]model.MerchItem{{ID: "m1", Name: "Tee"}},
		opts.podcasts)

	router := NewRouter(Routes{
		Competition: NewCompetitionHandler(pipeline, ledger, gate, rules.DefaultFees()),
		Site:        NewSiteHandler(catalog, inbox),
		Uploads:     NewStaticHandler(uploads, "/uploads/", storage.CategoryAudio),
	})
	return &testEnv{router: router, ledger: ledger, uploads: uploads}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type formFileSpec struct {
	field, filename, contentType string
	data                         []byte
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...formFileSpec) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.filename))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func janeFields() map[string]string {
	return map[string]string{
		"artistName":          "Jane",
		"email":               "jane@x.com",
		"songTitle":           "Song A",
		"categories":          `["Open"]`,
		"paymentClientSecret": "demo_123",
	}
}

func mp3(size int) formFileSpec {
	return formFileSpec{field: "file", filename: "song.mp3", contentType: "audio/mpeg", data: bytes.Repeat([]byte{'x'}, size)}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestSubmit_CreatesEntry(t *testing.T) {
	env := newTestEnv(t, envOptions{deadline: time.Now().Add(time.Hour)})

	rec := env.do(multipartRequest(t, "/competition/submit", janeFields(), mp3(2<<20)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		OK          bool      `json:"ok"`
		ID          string    `json:"id"`
		CreatedAt   time.Time `json:"createdAt"`
		AudioPath   string    `json:"audioPath"`
		ConsentPath *string   `json:"consentPath"`
	}
	decode(t, rec, &resp)
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.ID)
	require.True(t, strings.HasPrefix(resp.AudioPath, "audio/"))
	require.Nil(t, resp.ConsentPath)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/competition/entry/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entry model.CompetitionEntry
	decode(t, rec, &entry)
	require.Equal(t, "Song A", entry.SongTitle)
	require.Equal(t, model.EntryStatusPending, entry.Status)
	require.True(t, entry.Locked)
	require.False(t, entry.Paid)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/uploads/"+resp.AudioPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	require.Equal(t, 2<<20, rec.Body.Len())
}

func TestSubmit_DuplicateIsConflict(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(multipartRequest(t, "/api/competition/submit", janeFields(), mp3(128)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(multipartRequest(t, "/api/competition/submit", janeFields(), mp3(128)))
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	require.Equal(t, "DuplicateEntry", body.Kind)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/competition/entries", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []model.CompetitionEntry
	decode(t, rec, &entries)
	require.Len(t, entries, 1)
}

func TestSubmit_RuleViolationsNameTheRule(t *testing.T) {
	cases := []struct {
		name   string
		opts   envOptions
		mutate func(map[string]string)
		files  []formFileSpec
		status int
		kind   string
	}{
		{"sync alone", envOptions{}, func(f map[string]string) { f["categories"] = `["Sync"]` }, []formFileSpec{mp3(10)}, 400, "SyncRequiresAdditionalCategory"},
		{"closed", envOptions{deadline: time.Now().Add(-time.Hour)}, func(map[string]string) {}, []formFileSpec{mp3(10)}, 403, "SubmissionClosed"},
		{"teen without consent", envOptions{}, func(f map[string]string) {
			f["categories"] = `["Teen"]`
			f["dob"] = "2010-01-01"
		}, []formFileSpec{mp3(10)}, 400, "TeenProofRequired"},
		{"no audio", envOptions{}, func(map[string]string) {}, nil, 400, "AudioMissing"},
		{"bad category json", envOptions{}, func(f map[string]string) { f["categories"] = `["Open"` }, []formFileSpec{mp3(10)}, 400, "InvalidCategory"},
		{"no payment", envOptions{}, func(f map[string]string) { delete(f, "paymentClientSecret") }, []formFileSpec{mp3(10)}, 400, "PaymentProofMissing"},
		{"wrong format", envOptions{}, func(map[string]string) {}, []formFileSpec{{field: "file", filename: "a.wav", contentType: "audio/wav", data: []byte("wav")}}, 400, "AudioFormatInvalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.opts)
			fields := janeFields()
			tc.mutate(fields)

			rec := env.do(multipartRequest(t, "/competition/submit", fields, tc.files...))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			var body errorBody
			decode(t, rec, &body)
			require.Equal(t, tc.kind, body.Kind)
			require.NotEmpty(t, body.Error)
		})
	}
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// oversizedRequest streams a multipart body whose audio part runs past the
// request cap.
func oversizedRequest(path string, size int64) *http.Request {
	const boundary = "youbbleboundary"
	head := "--" + boundary + "\r\n" +
		`Content-Disposition: form-data; name="file"; filename="big.mp3"` + "\r\n" +
		"Content-Type: audio/mpeg\r\n\r\n"
	body := io.MultiReader(strings.NewReader(head), io.LimitReader(zeros{}, size))
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	return req
}

func TestSubmit_RulesApplyInOrder(t *testing.T) {
	closed := envOptions{deadline: time.Now().Add(-time.Hour), maxAudioBytes: 1024}

	t.Run("deadline before malformed categories", func(t *testing.T) {
		env := newTestEnv(t, closed)
		fields := janeFields()
		fields["categories"] = `["Open"`
		rec := env.do(multipartRequest(t, "/competition/submit", fields, mp3(10)))
		require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
		var body errorBody
		decode(t, rec, &body)
		require.Equal(t, "SubmissionClosed", body.Kind)
	})

	t.Run("deadline before body size", func(t *testing.T) {
		env := newTestEnv(t, closed)
		rec := env.do(oversizedRequest("/competition/submit", 64<<20))
		require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
		var body errorBody
		decode(t, rec, &body)
		require.Equal(t, "SubmissionClosed", body.Kind)
	})

	t.Run("required field before malformed categories", func(t *testing.T) {
		env := newTestEnv(t, envOptions{})
		fields := janeFields()
		delete(fields, "artistName")
		fields["categories"] = "[Open]"
		rec := env.do(multipartRequest(t, "/competition/submit", fields, mp3(10)))
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		var body errorBody
		decode(t, rec, &body)
		require.Equal(t, "MissingRequiredField", body.Kind)
	})
}

func TestSubmit_OversizedBodyNamesAudioLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{maxAudioBytes: 1024})

	rec := env.do(oversizedRequest("/competition/submit", 1024+formOverheadBytes+1<<20))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	var body errorBody
	decode(t, rec, &body)
	require.Equal(t, "AudioTooLarge", body.Kind)
	require.Equal(t, "Audio must be 1.0 KiB or less", body.Error)

	files, err := env.uploads.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestSubmit_TeenWithConsent(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	fields := janeFields()
	fields["categories"] = "Teen,Open"
	fields["dob"] = "2010-01-01"

	rec := env.do(multipartRequest(t, "/competition/submit", fields, mp3(10),
		formFileSpec{field: "consentFile", filename: "consent.pdf", contentType: "application/pdf", data: []byte("%PDF")}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ConsentPath string `json:"consentPath"`
	}
	decode(t, rec, &resp)
	require.True(t, strings.HasPrefix(resp.ConsentPath, "consents/"))
}

func TestSubmit_NotMultipart(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	req := httptest.NewRequest(http.MethodPost, "/competition/submit", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	rec := env.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	require.Equal(t, "InvalidForm", body.Kind)
}

func TestGetEntry_NotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/competition/entry/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentIntent(t *testing.T) {
	env := newTestEnv(t, envOptions{allowPlaceholder: true})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/competition/payment-intent",
		strings.NewReader(`{"amount":35,"currency":"usd"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var intent payment.Intent
	decode(t, rec, &intent)
	require.True(t, intent.Placeholder)
	require.True(t, payment.IsPlaceholder(intent.ClientSecret))

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/competition/payment-intent", strings.NewReader(`{"amount":0}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	require.Equal(t, "InvalidAmount", body.Kind)
}

func TestPaymentIntent_Unavailable(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.do(httptest.NewRequest(http.MethodPost, "/competition/payment-intent", strings.NewReader(`{"amount":20}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	require.Equal(t, "PaymentGateUnavailable", body.Kind)
	require.True(t, body.Retryable)
}

func TestFees(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/competition/fees?categories="+url.QueryEscape(`["Open","Sync"]`), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Fees     map[string]int64 `json:"fees"`
		Currency string           `json:"currency"`
		Quote    rules.Quote      `json:"quote"`
	}
	decode(t, rec, &resp)
	require.Equal(t, int64(30), resp.Fees["Sync"])
	require.Equal(t, "usd", resp.Currency)
	require.Equal(t, int64(50), resp.Quote.Total)

	rec = env.do(httptest.NewRequest(http.MethodGet, `/competition/fees?categories=Sync`, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSiteCatalog(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/releases/featured", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var releases []model.Release
	decode(t, rec, &releases)
	require.Len(t, releases, 1)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/merch", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/podcasts/latest", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSiteLatestPodcast(t *testing.T) {
	env := newTestEnv(t, envOptions{podcasts: []model.PodcastEpisode{
		{ID: "p1", PublishDate: "2024-01-01"},
		{ID: "p2", PublishDate: "2024-06-01"},
	}})
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/podcasts/latest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ep model.PodcastEpisode
	decode(t, rec, &ep)
	require.Equal(t, "p2", ep.ID)
}

func TestSiteInbox(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/demos",
		strings.NewReader(`{"artistName":"A","email":"a@x.com","bio":"hello"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var ok struct {
		Success    bool                 `json:"success"`
		Submission model.DemoSubmission `json:"submission"`
	}
	decode(t, rec, &ok)
	require.True(t, ok.Success)
	require.NotEmpty(t, ok.Submission.ID)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/collaborations", strings.NewReader(`{"name":"B"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fail inboxFailure
	decode(t, rec, &fail)
	require.False(t, fail.Success)
	require.Equal(t, "Validation error", fail.Message)
	require.Len(t, fail.Errors, 3)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := env.do(httptest.NewRequest(http.MethodOptions, "/api/competition/submit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUploads_RejectsEscape(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	rec := httptest.NewRecorder()
	NewStaticHandler(env.uploads, "/uploads/", storage.CategoryAudio).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/../../etc/passwd", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	NewStaticHandler(env.uploads, "/uploads/", storage.CategoryAudio).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/audio", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploads_ConsentsAreNotServed(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	fields := janeFields()
	fields["categories"] = `["Teen"]`
	fields["dob"] = "2010-01-01"

	rec := env.do(multipartRequest(t, "/competition/submit", fields, mp3(10),
		formFileSpec{field: "consentFile", filename: "consent.pdf", contentType: "application/pdf", data: []byte("SECRET-CONSENT")}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		AudioPath   string `json:"audioPath"`
		ConsentPath string `json:"consentPath"`
	}
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.ConsentPath)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/uploads/"+resp.ConsentPath, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotContains(t, rec.Body.String(), "SECRET-CONSENT")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/uploads/"+resp.AudioPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSplitCategories(t *testing.T) {
	require.Equal(t, []string{"Open", "Sync"}, splitCategories([]string{`["Open","Sync"]`}))
	require.Equal(t, []string{"Teen", "Open"}, splitCategories([]string{"Teen,Open"}))
	require.Equal(t, []string{"Open", "Cover"}, splitCategories([]string{"Open", "Cover"}))
	require.Equal(t, []string{`["Open"`}, splitCategories([]string{` ["Open" `}))
	require.Nil(t, splitCategories([]string{"  "}))
}
