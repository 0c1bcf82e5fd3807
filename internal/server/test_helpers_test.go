package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/netthinne/internal/pipeline"
	"github.com/MeKo-Tech/netthinne/internal/region"
	"github.com/MeKo-Tech/netthinne/internal/utils"
)

// mockPipeline returns a fixed single-object result, or err when set.
type mockPipeline struct {
	err    error
	calls  int
	closed bool
}

func (m *mockPipeline) ProcessImage(_ context.Context, img image.Image) (*pipeline.ImageResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	b := img.Bounds()
	res := &pipeline.ImageResult{Width: b.Dx(), Height: b.Dy()}
	res.Objects = []pipeline.DetectedObject{{
		ImageDataURL:         region.DataURLPrefix + "AAAA",
		DetectorLabelEN:      "cat",
		DetectorLabelNO:      "katt",
		ClassifierLabelEN:    "tabby",
		ClassifierLabelNO:    "(tabby)",
		Box:                  utils.NewBox(2, 2, 8, 8),
		DetectorClass:        15,
		DetectorConfidence:   0.9,
		ClassifierClass:      281,
		ClassifierConfidence: 0.7,
	}}
	return res, nil
}

func (m *mockPipeline) Info() map[string]interface{} {
	return map[string]interface{}{
		"detector":   map[string]interface{}{"loaded": true},
		"classifier": map[string]interface{}{"loaded": false},
		"models_dir": "/models",
	}
}

func (m *mockPipeline) Close() error {
	m.closed = true
	return nil
}

func newTestServer(pl pipelineInterface) *Server {
	return newServer(Config{
		CORSOrigin:      "*",
		MaxUploadMB:     1,
		TimeoutSec:      5,
		OverlayEnabled:  true,
		OverlayBoxColor: "#00ff00",
		Version:         "test",
	}, pl)
}

// multipartRequest builds a POST /detect request with an "image" file part
// and extra form fields.
func multipartRequest(t *testing.T, data []byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
