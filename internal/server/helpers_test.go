package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/config"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/quickcheck"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// stubChecker returns a fixed result and counts calls.
type stubChecker struct {
	result *pipeline.Result
	calls  atomic.Int64
	closed atomic.Bool
}

func (c *stubChecker) Check(_ context.Context, img image.Image) *pipeline.Result {
	c.calls.Add(1)
	res := *c.result
	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return &res
}

func (c *stubChecker) CheckBytes(_ context.Context, _ []byte) *pipeline.Result {
	c.calls.Add(1)
	res := *c.result
	return &res
}

func (c *stubChecker) DetectorLoaded() bool { return c.calls.Load() > 0 }

func (c *stubChecker) Close() error {
	c.closed.Store(true)
	return nil
}

func passingResult() *pipeline.Result {
	return &pipeline.Result{
		Success:        true,
		Status:         report.Compliant,
		ReasonCode:     report.ReasonAllChecksPassed,
		Recommendation: "LOOKS PROMISING: All primary checks passed.",
		FaceCount:      1,
		Image:          imaging.New(826, 1062, testutil.White),
	}
}

func rejectedResult() *pipeline.Result {
	return &pipeline.Result{
		Status:         report.Rejected,
		ReasonCode:     report.ReasonNoFace,
		Recommendation: report.RejectNoFace,
	}
}

// stubQuick answers every quick check with the verdict for faces.
type stubQuick struct{ faces int }

func (q stubQuick) Check(image.Image) quickcheck.Result { return quickcheck.Verdict(q.faces) }

type testEnv struct {
	server  *Server
	handler http.Handler
	checker *stubChecker
	orders  *storage.OrderStore
	dir     string
}

type envOption func(*config.ServerConfig, *Dependencies)

func withoutStorage() envOption {
	return func(_ *config.ServerConfig, d *Dependencies) { d.Orders = nil }
}

func withQuick(faces int) envOption {
	return func(_ *config.ServerConfig, d *Dependencies) { d.Quick = stubQuick{faces: faces} }
}

func withServerConfig(fn func(*config.ServerConfig)) envOption {
	return func(c *config.ServerConfig, _ *Dependencies) { fn(c) }
}

func newTestEnv(t *testing.T, result *pipeline.Result, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	orders := storage.NewOrderStore(store, storage.DefaultConfig())

	layout, err := printlayout.New(printlayout.DefaultConfig(), icao.DefaultConfig())
	require.NoError(t, err)

	checker := &stubChecker{result: result}
	cfg := config.DefaultConfig().Server
	deps := Dependencies{Checker: checker, Orders: orders, Layout: layout, ModelsDir: dir}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	s, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return &testEnv{server: s, handler: s.Handler(), checker: checker, orders: deps.Orders, dir: dir}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func smallPNG(t *testing.T) []byte {
	return pngBytes(t, imaging.New(64, 80, testutil.White))
}

// multipartRequest builds a POST with the image field and extra form fields.
func multipartRequest(t *testing.T, target string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
