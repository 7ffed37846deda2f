package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domai "github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/domain/analysis"
	"github.com/bryanwahyu/cowhealth/internal/domain/history"
	cowimage "github.com/bryanwahyu/cowhealth/internal/infra/image"
	"github.com/bryanwahyu/cowhealth/internal/middleware"
)

type fakeAnalyzer struct {
	mu         sync.Mutex
	got        []analysis.Request
	result     *analysis.Result
	err        error
	advice     analysis.TreatmentAdvice
	conditions []analysis.ConditionTreatment
	disease    string
}

func (f *fakeAnalyzer) AnalyzeImage(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	return f.result, f.err
}

func (f *fakeAnalyzer) SuggestTreatment(_ context.Context, disease string) (analysis.TreatmentAdvice, error) {
	f.disease = disease
	return f.advice, f.err
}

func (f *fakeAnalyzer) ListConditionsAndTreatments(_ context.Context, disease string) ([]analysis.ConditionTreatment, error) {
	f.disease = disease
	return f.conditions, f.err
}

type fakeHistory struct {
	recorded  int
	recordErr error
	records   []*history.Record
	summary   string
	text      string
	limit     int
}

func (f *fakeHistory) Record(_ context.Context, _ analysis.Request, _ *analysis.Result) (*history.Record, error) {
	f.recorded++
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return &history.Record{ID: "rec-1"}, nil
}

func (f *fakeHistory) Latest(_ context.Context, limit int) ([]*history.Record, error) {
	f.limit = limit
	return f.records, nil
}

func (f *fakeHistory) Get(_ context.Context, id history.RecordID) (*history.Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, history.ErrNotFound
}

func (f *fakeHistory) SummarizeText(_ context.Context, text string) (string, error) {
	f.text = text
	return f.summary, nil
}

func (f *fakeHistory) SummarizeRecent(_ context.Context, limit int) (string, error) {
	f.limit = limit
	return f.summary, nil
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func enrichedResult() *analysis.Result {
	res := analysis.NewResult(analysis.Assessment{CowPresent: true, Breed: "Jersey 🐄", Color: "brown", Health: "Ringworm"})
	tips := "Apply antifungal 💊"
	res.TreatmentSuggestions = &tips
	res.DiseaseDetails = []analysis.ConditionTreatment{{ConditionName: "Ringworm", MedicineName: "Miconazole", ReferenceLink: "https://example.com/m"}}
	return res
}

func newServer(a *fakeAnalyzer, h History) http.Handler {
	return NewRouter(Options{
		Analyzer:       a,
		History:        h,
		Intake:         cowimage.NewIntake(1<<20, nil, nil),
		ImageURLs:      middleware.NewImageURLValidator(farmResolver{}),
		AllowedOrigins: []string{"*"},
	})
}

type farmResolver struct{}

func (farmResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	switch host {
	case "farm.example.com":
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	case "rebind.example.com":
		return []net.IPAddr{{IP: net.ParseIP("127.0.0.1")}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeJSON(t *testing.T) {
	a := &fakeAnalyzer{result: enrichedResult()}
	hist := &fakeHistory{}
	srv := newServer(a, hist)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(tinyPNG(t))
	rec := postJSON(t, srv, "/v1/analyze", map[string]string{"imageUrl": dataURL, "prompt": " Is this cow sick?\x00 "})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "rec-1", rec.Header().Get("X-Analysis-ID"))
	assert.JSONEq(t, `{
		"cowPresent": true, "breed": "Jersey 🐄", "color": "brown", "health": "Ringworm",
		"treatmentSuggestions": "Apply antifungal 💊",
		"diseaseDetails": [{"diseaseName": "Ringworm", "medicineName": "Miconazole", "medicineLink": "https://example.com/m"}]
	}`, rec.Body.String())

	require.Len(t, a.got, 1)
	assert.Equal(t, "Is this cow sick?", a.got[0].Instruction)
	assert.Equal(t, "image/png", a.got[0].Image.MIMEType)
	assert.Equal(t, 1, hist.recorded)
}

func TestAnalyzeMultipart(t *testing.T) {
	a := &fakeAnalyzer{result: analysis.NewResult(analysis.Assessment{CowPresent: true, Health: analysis.NoDiseaseSentinel})}
	srv := newServer(a, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "cow.png")
	require.NoError(t, err)
	_, err = fw.Write(tinyPNG(t))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("prompt", "check the udder"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"cowPresent":true,"breed":"","color":"","health":"No visible disease signs","diseaseDetails":[]}`, rec.Body.String())
	assert.Equal(t, "check the udder", a.got[0].Instruction)
	assert.True(t, a.got[0].Image.Inline())
}

func TestAnalyzeRecordFailureStillAnswers(t *testing.T) {
	srv := newServer(&fakeAnalyzer{result: enrichedResult()}, &fakeHistory{recordErr: errors.New("db down")})

	rec := postJSON(t, srv, "/v1/analyze", map[string]string{"imageUrl": "https://farm.example.com/cow.jpg", "prompt": "p"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Analysis-ID"))
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		err      error
		wantCode int
		wantBody string
	}{
		{name: "bad json", body: "not an object", wantCode: http.StatusBadRequest},
		{name: "missing image", body: map[string]string{"prompt": "p"}, wantCode: http.StatusBadRequest},
		{name: "private host", body: map[string]string{"imageUrl": "http://10.1.2.3/cow.jpg"}, wantCode: http.StatusBadRequest},
		{name: "name resolving to loopback", body: map[string]string{"imageUrl": "http://rebind.example.com/cow.jpg"}, wantCode: http.StatusBadRequest},
		{name: "not an image", body: map[string]string{"imageUrl": "data:image/png;base64,aGVsbG8="}, wantCode: http.StatusBadRequest},
		{
			name:     "quota",
			body:     map[string]string{"imageUrl": "https://farm.example.com/cow.jpg"},
			err:      domai.NewServiceError("initialAnalysisPrompt", domai.ErrQuotaExceeded),
			wantCode: http.StatusTooManyRequests,
		},
		{
			name:     "service error",
			body:     map[string]string{"imageUrl": "https://farm.example.com/cow.jpg"},
			err:      domai.NewServiceError("initialAnalysisPrompt", domai.ErrMalformedResponse),
			wantCode: http.StatusBadGateway,
			wantBody: "analysis could not be completed: response does not match declared shape",
		},
		{
			name:     "unexpected",
			body:     map[string]string{"imageUrl": "https://farm.example.com/cow.jpg"},
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAnalyzer{err: tt.err}
			hist := &fakeHistory{}
			rec := postJSON(t, newServer(a, hist), "/v1/analyze", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
			}
			assert.Zero(t, hist.recorded)
		})
	}
}

func TestTreatmentsAndConditions(t *testing.T) {
	a := &fakeAnalyzer{
		advice: analysis.TreatmentAdvice{Suggestions: "Isolate and treat 🩺"},
		conditions: []analysis.ConditionTreatment{
			{ConditionName: "Mastitis", MedicineName: "Cephapirin", ReferenceLink: "https://example.com/c"},
			{ConditionName: "Udder edema", MedicineName: "Furosemide", ReferenceLink: "https://example.com/f"},
		},
	}
	srv := newServer(a, nil)

	rec := postJSON(t, srv, "/v1/treatments", map[string]string{"disease": "Mastitis"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"treatmentSuggestions":"Isolate and treat 🩺"}`, rec.Body.String())
	assert.Equal(t, "Mastitis", a.disease)

	rec = postJSON(t, srv, "/v1/conditions", map[string]string{"disease": "Mastitis"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"diseaseName":"Mastitis","medicineName":"Cephapirin","medicineLink":"https://example.com/c"},
		{"diseaseName":"Udder edema","medicineName":"Furosemide","medicineLink":"https://example.com/f"}
	]`, rec.Body.String())

	rec = postJSON(t, srv, "/v1/treatments", map[string]string{"disease": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRoutes(t *testing.T) {
	created := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	hist := &fakeHistory{
		records: []*history.Record{{ID: "rec-1", Prompt: "p", Result: *enrichedResult(), CreatedAt: created}},
		summary: "One cow treated for ringworm.",
	}
	srv := newServer(&fakeAnalyzer{}, hist)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, hist.limit)
	var recs []history.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "Ringworm", recs[0].Result.Health)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, srv, "/v1/history/summary", map[string]any{"analysisHistory": "cow 1 had ringworm"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"summary":"One cow treated for ringworm."}`, rec.Body.String())
	assert.Equal(t, "cow 1 had ringworm", hist.text)

	rec = postJSON(t, srv, "/v1/history/summary", map[string]any{"limit": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.limit)
}

func TestHistoryRoutesDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(&fakeAnalyzer{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShapes(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(&fakeAnalyzer{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/shapes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var shapes map[string]struct {
		Output struct {
			Required []string `json:"required"`
		} `json:"output"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shapes))
	assert.Equal(t, []string{"breed", "color", "cowPresent", "health"}, shapes["initialAnalysisPrompt"].Output.Required)
	assert.Contains(t, shapes, "generateConditionsAndTreatmentsPrompt")
	assert.Contains(t, shapes, "analysisResult")
}

func TestHealthRoutesBypassAuth(t *testing.T) {
	srv := NewRouter(Options{
		Analyzer: &fakeAnalyzer{},
		APIKeys:  map[string]string{"ui": "k"},
		Checkers: map[string]middleware.HealthChecker{},
	})

	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := postJSON(t, srv, "/v1/treatments", map[string]string{"disease": "Mastitis"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
