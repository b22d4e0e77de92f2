package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"diffusiond/internal/engine"
	"diffusiond/pkg/types"
)

type mockService struct {
	ready  bool
	models []types.ModelObject
	status types.StatusResponse
	genFn  func(ctx context.Context, req types.ImageGenerationRequest) ([][]byte, error)

	lastReq types.ImageGenerationRequest
}

func (m *mockService) Models() []types.ModelObject  { return m.models }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) ModelLoaded() bool            { return m.ready }

func (m *mockService) Generate(ctx context.Context, req types.ImageGenerationRequest) ([][]byte, error) {
	m.lastReq = req
	if m.genFn != nil {
		return m.genFn(ctx, req)
	}
	return [][]byte{[]byte("png-bytes")}, nil
}

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewMux(svc))
	t.Cleanup(srv.Close)
	return srv
}

func postGeneration(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/images/generations", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return er
}

func TestGenerationsSuccess(t *testing.T) {
	svc := &mockService{ready: true}
	srv := newTestServer(t, svc)

	resp := postGeneration(t, srv, `{"prompt":"a red fox","n":1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out types.ImageGenerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Created == 0 || len(out.Data) != 1 {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	raw, err := base64.StdEncoding.DecodeString(out.Data[0].B64JSON)
	if err != nil {
		t.Fatalf("b64_json not decodable: %v", err)
	}
	if !bytes.Equal(raw, []byte("png-bytes")) {
		t.Fatalf("payload mangled: %q", raw)
	}
}

func TestGenerationsAppliesDefaults(t *testing.T) {
	svc := &mockService{ready: true}
	srv := newTestServer(t, svc)

	resp := postGeneration(t, srv, `{"prompt":"a red fox"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := svc.lastReq
	if got.N != 1 || got.Size != "512x512" || got.ResponseFormat != "b64_json" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if got.NumInferenceSteps != 50 || got.GuidanceScale != 7.5 {
		t.Fatalf("diffusion defaults not applied: %+v", got)
	}
}

func TestGenerationsRejectsWrongContentType(t *testing.T) {
	srv := newTestServer(t, &mockService{ready: true})

	resp, err := http.Post(srv.URL+"/v1/images/generations", "text/plain", strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
}

func TestGenerationsRejectsBadJSON(t *testing.T) {
	srv := newTestServer(t, &mockService{ready: true})

	resp := postGeneration(t, srv, `{"prompt":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if er := decodeError(t, resp); er.Error != "invalid JSON body" {
		t.Fatalf("unexpected message: %q", er.Error)
	}
}

func TestGenerationsValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing prompt", `{}`, "prompt is required"},
		{"blank prompt", `{"prompt":"   "}`, "prompt is required"},
		{"n too large", `{"prompt":"x","n":11}`, "n must be between 1 and 10"},
		{"n negative", `{"prompt":"x","n":-1}`, "n must be between 1 and 10"},
		{"steps out of range", `{"prompt":"x","num_inference_steps":151}`, "num_inference_steps must be between 1 and 150"},
		{"guidance out of range", `{"prompt":"x","guidance_scale":25}`, "guidance_scale must be between 1.0 and 20.0"},
		{"url format", `{"prompt":"x","response_format":"url"}`, "URL response format is not supported. Use 'b64_json' instead."},
		{"unknown format", `{"prompt":"x","response_format":"jpeg"}`, "response_format must be 'b64_json'"},
	}
	srv := newTestServer(t, &mockService{ready: true})
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := postGeneration(t, srv, c.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if er := decodeError(t, resp); er.Error != c.want {
				t.Fatalf("message = %q, want %q", er.Error, c.want)
			}
		})
	}
}

func TestGenerationsErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid size", engine.ErrInvalidSize("abc"), http.StatusBadRequest},
		{"model mismatch", engine.ErrModelMismatch("other", "sd-turbo"), http.StatusMisdirectedRequest},
		{"not ready", engine.ErrEngineNotReady(), http.StatusServiceUnavailable},
		{"too busy", engine.ErrTooBusy(), http.StatusTooManyRequests},
		{"generation failure", engine.ErrGeneration("inference", nil), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc := &mockService{
				ready: true,
				genFn: func(ctx context.Context, req types.ImageGenerationRequest) ([][]byte, error) {
					return nil, c.err
				},
			}
			srv := newTestServer(t, svc)
			resp := postGeneration(t, srv, `{"prompt":"a red fox"}`)
			if resp.StatusCode != c.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, c.want)
			}
			if er := decodeError(t, resp); er.Code != c.want || er.Error == "" {
				t.Fatalf("unexpected error payload: %+v", er)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockService{ready: true})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var h types.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "healthy" || !h.ModelLoaded {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t, &mockService{ready: true})
	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	srvLoading := newTestServer(t, &mockService{ready: false})
	resp, err = http.Get(srvLoading.URL + "/readyz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestModelsEndpoint(t *testing.T) {
	svc := &mockService{
		ready: true,
		models: []types.ModelObject{
			{ID: "sd-turbo", Object: "model", OwnedBy: "diffusers"},
		},
	}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out types.ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Object != "list" || len(out.Data) != 1 || out.Data[0].ID != "sd-turbo" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc := &mockService{
		ready:  true,
		status: types.StatusResponse{State: "ready", Device: "cpu", Precision: "float32"},
	}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "ready" || st.Device != "cpu" {
		t.Fatalf("unexpected status: %+v", st)
	}
}
