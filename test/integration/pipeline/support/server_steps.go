package support

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/netthinne/internal/server"
)

// RegisterServerSteps registers steps that drive the HTTP API.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the detection server is running$`, testCtx.theDetectionServerIsRunning)
	sc.Step(`^I upload the image as "([^"]*)"$`, testCtx.iUploadTheImageAs)
	sc.Step(`^I upload "([^"]*)" as the image$`, testCtx.iUploadBytesAsTheImage)
	sc.Step(`^I send the image over the websocket$`, testCtx.iSendTheImageOverTheWebsocket)
	sc.Step(`^I request "([^"]*)"$`, testCtx.iRequest)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response content type should be "([^"]*)"$`, testCtx.theResponseContentTypeShouldBe)
	sc.Step(`^the response should contain '(.*)'$`, testCtx.theResponseShouldContain)
}

func (testCtx *TestContext) theDetectionServerIsRunning() error {
	pl, err := testCtx.buildPipeline()
	if err != nil {
		return err
	}
	srv := server.NewServerWithPipeline(server.Config{
		CORSOrigin:     "*",
		MaxUploadMB:    5,
		TimeoutSec:     10,
		OverlayEnabled: true,
		Version:        "integration",
	}, pl)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	testCtx.Server = httptest.NewServer(mux)
	return nil
}

func (testCtx *TestContext) imagePNG() ([]byte, error) {
	if testCtx.Image == nil {
		return nil, errors.New("no image given")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, testCtx.Image); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (testCtx *TestContext) iUploadTheImageAs(format string) error {
	data, err := testCtx.imagePNG()
	if err != nil {
		return err
	}
	return testCtx.upload(data, format)
}

func (testCtx *TestContext) iUploadBytesAsTheImage(payload string) error {
	return testCtx.upload([]byte(payload), "json")
}

func (testCtx *TestContext) upload(data []byte, format string) error {
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "upload.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.WriteField("format", format); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	resp, err := http.Post(testCtx.Server.URL+"/detect", w.FormDataContentType(), &body) //nolint:noctx // test server
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) iRequest(path string) error {
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	resp, err := http.Get(testCtx.Server.URL + path) //nolint:noctx // test server
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastContentType = resp.Header.Get("Content-Type")
	return nil
}

// iSendTheImageOverTheWebsocket sends one detect request and keeps every
// message up to the final one as the response.
func (testCtx *TestContext) iSendTheImageOverTheWebsocket() error {
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	data, err := testCtx.imagePNG()
	if err != nil {
		return err
	}

	url := "ws" + strings.TrimPrefix(testCtx.Server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	req := map[string]string{"type": "image", "image": base64.StdEncoding.EncodeToString(data)}
	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	var messages []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		messages = append(messages, string(msg))
		var status struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(msg, &status); err != nil {
			return err
		}
		if status.Status == "completed" || status.Status == "error" {
			break
		}
	}
	testCtx.LastHTTPStatusCode = http.StatusOK
	testCtx.LastHTTPResponse = strings.Join(messages, "\n")
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("status %d, want %d: %s", testCtx.LastHTTPStatusCode, status, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseContentTypeShouldBe(contentType string) error {
	if testCtx.LastContentType != contentType {
		return fmt.Errorf("content type %q, want %q", testCtx.LastContentType, contentType)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain %q: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}
