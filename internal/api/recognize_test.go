package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/models"
)

func (e *testEnv) upload(t *testing.T, path string, img image.Image) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if img != nil {
		part, err := mw.CreateFormFile("file", "frame.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(part, img))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type recognizeBody struct {
	FacesDetected int                `json:"faces_detected"`
	Matches       []models.FaceMatch `json:"matches"`
	Alerts        []json.RawMessage  `json:"alerts"`
}

func TestRecognizeIdentifiesOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	env.faces.matches = []models.FaceMatch{{
		VisitorID: "v1", Name: "Ann", Category: models.CategoryVisitor, Confidence: 0.9,
		Box: models.BoundingBox{X: 1, Y: 1, W: 10, H: 10},
	}}

	w := env.upload(t, "/v1/recognize", image.NewRGBA(image.Rect(0, 0, 32, 32)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got recognizeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.FacesDetected)
	assert.Equal(t, "v1", got.Matches[0].VisitorID)
	assert.Empty(t, env.store.events, "plain recognition is not tracked")
	assert.Empty(t, env.outlet.results)
}

func TestRecognizeAsCameraFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cams.cfgs["vault"] = models.CameraConfig{
		CameraID: "vault", SourceKind: models.SourceFile, Source: "a.mp4",
		Location: "Vault", ZoneType: models.ZoneRestricted,
	}
	env.faces.matches = []models.FaceMatch{{
		VisitorID: "v1", Name: "Ann", Category: models.CategoryVisitor, Confidence: 0.9,
		Box: models.BoundingBox{X: 1, Y: 1, W: 10, H: 10},
	}}

	w := env.upload(t, "/v1/recognize?camera_id=vault", image.NewRGBA(image.Rect(0, 0, 32, 32)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got recognizeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.FacesDetected)
	assert.Len(t, got.Alerts, 1)
	assert.Len(t, env.store.events, 1)
	require.Len(t, env.outlet.results, 1)
	assert.Equal(t, "vault", env.outlet.results[0].CameraID)
}

func TestRecognizeRejectsBadUploads(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.upload(t, "/v1/recognize", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.upload(t, "/v1/recognize?camera_id=ghost", image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
