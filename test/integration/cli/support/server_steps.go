package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MeKo-Tech/photocheck/internal/config"
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/server"
	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/cucumber/godog"
)

// RegisterServerSteps registers HTTP API step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a running photo check server$`, func() error { return testCtx.startServer(1) })
	sc.Step(`^a running photo check server that detects no faces$`, func() error { return testCtx.startServer(0) })
	sc.Step(`^I send a GET request to "([^"]*)"$`, testCtx.iSendAGETRequestTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)" with field "([^"]*)" set to "([^"]*)"$`, testCtx.iUploadToWithField)
	sc.Step(`^I validate the last order$`, testCtx.iValidateTheLastOrder)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the last order should contain "([^"]*)"$`, testCtx.theLastOrderShouldContain)
	sc.Step(`^the last order should not contain "([^"]*)"$`, testCtx.theLastOrderShouldNotContain)
}

// startServer serves the real pipeline behind httptest. The detector is a
// fake that reports the synthetic portrait's face faces times.
func (testCtx *TestContext) startServer(faces int) error {
	cfg := config.DefaultConfig()
	_, f := testutil.Portrait(cfg.ICAO, testutil.DefaultPortrait())
	detected := make([]face.DetectedFace, 0, faces)
	for range faces {
		detected = append(detected, f)
	}

	checker, err := pipeline.NewBuilder().
		WithICAO(cfg.ICAO).
		WithKeepImages(true).
		WithDetector(&testutil.FakeDetector{Faces: detected}).
		WithSegmenter(nil).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build checker: %w", err)
	}

	testCtx.OrderDir = filepath.Join(testCtx.TempDir, "orders")
	store, err := storage.NewLocalStore(testCtx.OrderDir)
	if err != nil {
		return err
	}
	layout, err := printlayout.New(cfg.Layout, cfg.ICAO)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg.Server, server.Dependencies{
		Checker: checker,
		Orders:  storage.NewOrderStore(store, cfg.ToStorageConfig()),
		Layout:  layout,
	})
	if err != nil {
		return err
	}
	testCtx.closers = append(testCtx.closers, srv.Close)
	testCtx.Server = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) record(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = resp.Header

	var order struct {
		OrderID string `json:"order_id"`
	}
	if json.Unmarshal(body, &order) == nil && order.OrderID != "" {
		testCtx.LastOrderID = order.OrderID
	}
	return nil
}

func (testCtx *TestContext) iSendAGETRequestTo(path string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("server is not running")
	}
	resp, err := http.Get(testCtx.Server.URL + path) //nolint:noctx // test server
	if err != nil {
		return err
	}
	return testCtx.record(resp)
}

func (testCtx *TestContext) iUploadTo(name, path string) error {
	return testCtx.upload(name, path, nil)
}

func (testCtx *TestContext) iUploadToWithField(name, path, field, value string) error {
	return testCtx.upload(name, path, map[string]string{field: value})
}

func (testCtx *TestContext) upload(name, path string, fields map[string]string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("server is not running")
	}
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", filepath.Base(name))
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := http.Post(testCtx.Server.URL+path, mw.FormDataContentType(), &body) //nolint:noctx // test server
	if err != nil {
		return err
	}
	return testCtx.record(resp)
}

func (testCtx *TestContext) iValidateTheLastOrder() error {
	if testCtx.LastOrderID == "" {
		return fmt.Errorf("no order has been created")
	}
	return testCtx.iSendAGETRequestTo("/validate-photo?orderId=" + testCtx.LastOrderID)
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldBe(field, expected string) error {
	var body map[string]any
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &body); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return fmt.Errorf("field %q missing in %s", field, testCtx.LastHTTPResponse)
	}
	var got string
	switch t := v.(type) {
	case string:
		got = t
	case bool:
		got = strconv.FormatBool(t)
	case float64:
		got = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		got = fmt.Sprint(t)
	}
	if got != expected {
		return fmt.Errorf("field %q is %q, expected %q", field, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != expected {
		return fmt.Errorf("header %s is %q, expected %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) orderFile(name string) string {
	return filepath.Join(testCtx.OrderDir, testCtx.LastOrderID, name)
}

func (testCtx *TestContext) theLastOrderShouldContain(name string) error {
	if _, err := os.Stat(testCtx.orderFile(name)); err != nil {
		return fmt.Errorf("order %s has no %s: %w", testCtx.LastOrderID, name, err)
	}
	return nil
}

func (testCtx *TestContext) theLastOrderShouldNotContain(name string) error {
	if _, err := os.Stat(testCtx.orderFile(name)); err == nil {
		return fmt.Errorf("order %s unexpectedly has %s", testCtx.LastOrderID, name)
	}
	return nil
}
