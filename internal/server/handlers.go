package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/printlayout"
	"github.com/MeKo-Tech/photocheck/internal/quickcheck"
	"github.com/MeKo-Tech/photocheck/internal/storage"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/MeKo-Tech/photocheck/internal/version"
)

// Check sources, used as metric labels.
const (
	sourceOrder     = "order"
	sourceUpload    = "upload"
	sourceWebSocket = "websocket"
)

// httpError is a failure that maps to a status code and client message.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func newHTTPError(status int, format string, args ...any) *httpError {
	return &httpError{status: status, message: fmt.Sprintf(format, args...)}
}

func (s *Server) fail(w http.ResponseWriter, err *httpError) {
	s.writeError(w, err.message, err.status)
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed"})
	return false
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        version.Version,
		Time:           time.Now().UTC().Format(time.RFC3339),
		DetectorLoaded: s.checker.DetectorLoaded(),
	})
}

// modelsHandler lists the model files the service uses.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	infos := models.ListAvailableModels()
	list := make([]ModelInfo, len(infos))
	for i, info := range infos {
		path := models.ResolveModelPath(s.modelsDir, info.Type, info.Filename)
		_, err := os.Stat(path)
		list[i] = ModelInfo{
			Name:        info.Name,
			Path:        path,
			Type:        info.Type,
			Description: info.Description,
			Required:    info.Required,
			Present:     err == nil,
		}
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: list, Count: len(list)})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, "Endpoint not found", http.StatusNotFound)
}

// readUpload reads the multipart "image" field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, *httpError) {
	limit := s.maxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "too large") {
			return nil, newHTTPError(http.StatusRequestEntityTooLarge, "File too large")
		}
		return nil, newHTTPError(http.StatusBadRequest, "Failed to parse form data")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, newHTTPError(http.StatusBadRequest, "No image file provided")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, newHTTPError(http.StatusInternalServerError, "Failed to read image data")
	}
	uploadSizeBytes.Observe(float64(len(data)))
	return data, nil
}

// decodeUpload reads and decodes an uploaded photo.
func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request) ([]byte, image.Image, *httpError) {
	data, herr := s.readUpload(w, r)
	if herr != nil {
		return nil, nil, herr
	}
	if mime, ok := utils.DetectImageType(data); !ok {
		return nil, nil, newHTTPError(http.StatusUnsupportedMediaType, "Unsupported image type: %s", mime)
	}
	img, _, err := utils.DecodeImage(data)
	if err != nil {
		return nil, nil, newHTTPError(http.StatusBadRequest, "Invalid image data")
	}
	return data, img, nil
}

// loadOrder fetches the original photo of the order named by ?orderId=.
func (s *Server) loadOrder(r *http.Request) (string, image.Image, *httpError) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		return "", nil, newHTTPError(http.StatusBadRequest, "orderId is required")
	}
	if s.orders == nil {
		return "", nil, newHTTPError(http.StatusServiceUnavailable, "Storage unavailable")
	}
	if err := storage.ValidateOrderID(orderID); err != nil {
		return "", nil, newHTTPError(http.StatusBadRequest, "Invalid orderId")
	}
	img, err := s.orders.LoadOriginal(r.Context(), orderID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		storageOperations.WithLabelValues("load_original", "not_found").Inc()
		return "", nil, newHTTPError(http.StatusNotFound, "Order not found")
	case err != nil:
		storageOperations.WithLabelValues("load_original", "error").Inc()
		logger(r).Error("Failed to load order image", "order_id", orderID, "error", err)
		return "", nil, newHTTPError(http.StatusInternalServerError, "Failed to load order image")
	}
	storageOperations.WithLabelValues("load_original", "ok").Inc()
	return orderID, img, nil
}

// orderUploadHandler stores an original photo under a new or given order id.
func (s *Server) orderUploadHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if s.orders == nil {
		s.writeError(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}
	data, _, herr := s.decodeUpload(w, r)
	if herr != nil {
		s.fail(w, herr)
		return
	}
	orderID := r.FormValue("orderId")
	if orderID == "" {
		orderID = storage.NewOrderID()
	} else if err := storage.ValidateOrderID(orderID); err != nil {
		s.writeError(w, "Invalid orderId", http.StatusBadRequest)
		return
	}

	url, err := s.orders.SaveOriginal(r.Context(), orderID, data)
	if err != nil {
		storageOperations.WithLabelValues("save_original", "error").Inc()
		logger(r).Error("Failed to store original", "order_id", orderID, "error", err)
		s.writeError(w, "Storage failed", http.StatusInternalServerError)
		return
	}
	storageOperations.WithLabelValues("save_original", "ok").Inc()
	logger(r).Info("Order original stored", "order_id", orderID, "bytes", len(data))
	writeJSON(w, http.StatusCreated, OrderResponse{Success: true, OrderID: orderID, URL: url})
}

// quickCheckHandler counts faces in an order original (GET) or an upload
// (POST). Exactly one face answers 200, anything else 422.
func (s *Server) quickCheckHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if s.quick == nil {
		s.writeError(w, "Quick check unavailable", http.StatusServiceUnavailable)
		return
	}

	var img image.Image
	var herr *httpError
	if r.Method == http.MethodGet {
		_, img, herr = s.loadOrder(r)
	} else {
		_, img, herr = s.decodeUpload(w, r)
	}
	if herr != nil {
		s.fail(w, herr)
		return
	}

	res := s.quick.Check(img)
	quickChecksTotal.WithLabelValues(quickLabel(res)).Inc()
	facesDetected.Observe(float64(res.FaceCount))
	logger(r).Info("Quick check", "face_count", res.FaceCount, "success", res.Success)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func quickLabel(res quickcheck.Result) string {
	switch {
	case res.FaceCount == 0:
		return "no_face"
	case res.FaceCount > 1:
		return "multiple_faces"
	default:
		return "face"
	}
}

// validateOrderHandler runs the full check on an order original and, when it
// passes, stores the validated photo and its print sheet.
func (s *Server) validateOrderHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	orderID, img, herr := s.loadOrder(r)
	if herr != nil {
		s.fail(w, herr)
		return
	}

	res := s.runCheck(r.Context(), sourceOrder, func(ctx context.Context) *pipeline.Result {
		return s.checker.Check(ctx, img)
	})
	resp := ValidateResponse{Result: res, OrderID: orderID}
	if res.Success {
		if err := s.storeValidated(r.Context(), &resp); err != nil {
			logger(r).Error("Storage error", "order_id", orderID, "error", err)
			s.writeError(w, "Storage failed", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// validateUploadHandler runs the full check on an uploaded photo. With an
// orderId form field and a passing result the images are stored as well.
func (s *Server) validateUploadHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	data, herr := s.readUpload(w, r)
	if herr != nil {
		s.fail(w, herr)
		return
	}
	orderID := r.FormValue("orderId")
	if orderID != "" {
		if s.orders == nil {
			s.writeError(w, "Storage unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := storage.ValidateOrderID(orderID); err != nil {
			s.writeError(w, "Invalid orderId", http.StatusBadRequest)
			return
		}
	}

	res := s.runCheck(r.Context(), sourceUpload, func(ctx context.Context) *pipeline.Result {
		return s.checker.CheckBytes(ctx, data)
	})
	resp := ValidateResponse{Result: res, OrderID: orderID}
	if orderID != "" && res.Success {
		err := s.saveOriginal(r.Context(), orderID, data)
		if err == nil {
			err = s.storeValidated(r.Context(), &resp)
		}
		if err != nil {
			logger(r).Error("Storage error", "order_id", orderID, "error", err)
			s.writeError(w, "Storage failed", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runCheck(ctx context.Context, source string, check func(context.Context) *pipeline.Result) *pipeline.Result {
	start := time.Now()
	res := check(ctx)
	checkDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	checksTotal.WithLabelValues(source, string(res.ReasonCode)).Inc()
	facesDetected.Observe(float64(res.FaceCount))
	return res
}

func (s *Server) saveOriginal(ctx context.Context, orderID string, data []byte) error {
	if _, err := s.orders.SaveOriginal(ctx, orderID, data); err != nil {
		storageOperations.WithLabelValues("save_original", "error").Inc()
		return err
	}
	storageOperations.WithLabelValues("save_original", "ok").Inc()
	return nil
}

// storeValidated renders the print sheet and stores both images of resp's
// order, filling in their URLs.
func (s *Server) storeValidated(ctx context.Context, resp *ValidateResponse) error {
	if s.orders == nil {
		return errors.New("storage unavailable")
	}
	if resp.Result.Image == nil {
		return errors.New("validated image was not retained")
	}
	var sheet []byte
	if s.layout != nil {
		data, _, err := s.layout.JPEG(resp.Result.Image)
		if err != nil {
			return fmt.Errorf("print layout: %w", err)
		}
		printSheetsTotal.WithLabelValues(printlayout.FormatJPEG).Inc()
		sheet = data
	}
	stored, err := s.orders.StoreValidated(ctx, resp.OrderID, resp.Result.Image, sheet)
	if err != nil {
		storageOperations.WithLabelValues("store_validated", "error").Inc()
		return err
	}
	storageOperations.WithLabelValues("store_validated", "ok").Inc()
	resp.ValidatedURL = stored.ValidatedURL
	resp.PrintURL = stored.PrintURL
	return nil
}

// printLayoutHandler renders the print sheet of an uploaded photo as JPEG or
// PDF (form field "format"). With validate=true the photo is checked first
// and the sheet is built from the processed image; rejected photos answer
// 422 with the report.
func (s *Server) printLayoutHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if s.layout == nil {
		s.writeError(w, "Print layout unavailable", http.StatusServiceUnavailable)
		return
	}
	data, img, herr := s.decodeUpload(w, r)
	if herr != nil {
		s.fail(w, herr)
		return
	}
	format := strings.ToLower(r.FormValue("format"))
	if format == "" {
		format = printlayout.FormatJPEG
	}
	if validate, _ := strconv.ParseBool(r.FormValue("validate")); validate {
		res := s.runCheck(r.Context(), sourceUpload, func(ctx context.Context) *pipeline.Result {
			return s.checker.CheckBytes(ctx, data)
		})
		if !res.Success || res.Image == nil {
			writeJSON(w, http.StatusUnprocessableEntity, ValidateResponse{Result: res})
			return
		}
		img = res.Image
	}

	out, contentType, info, err := s.layout.Encode(img, format)
	if err != nil {
		if errors.Is(err, printlayout.ErrUnsupportedFormat) {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger(r).Error("Print layout failed", "error", err)
		s.writeError(w, "Print layout failed", http.StatusInternalServerError)
		return
	}
	printSheetsTotal.WithLabelValues(format).Inc()

	ext := "jpg"
	if format == printlayout.FormatPDF {
		ext = "pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "print-sheet."+ext))
	w.Header().Set("X-Photos-Count", strconv.Itoa(info.PhotosCount))
	w.Header().Set("X-Print-DPI", strconv.Itoa(info.DPI))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out); err != nil {
		logger(r).Error("Failed to write print sheet", "error", err)
	}
}
