package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"onchaindice/internal/fhe"
)

const maxRequestBytes = 64 << 10

type errorBody struct {
	Error     string `json:"error"`
	Codespace string `json:"codespace,omitempty"`
	Code      uint32 `json:"code,omitempty"`
}

func newErrorBody(err error) errorBody {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return errorBody{Error: err.Error(), Codespace: codespace, Code: code}
}

// NewHandler serves POST /v1/user-decrypt.
func NewHandler(s *Service, logger log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+UserDecryptPath, func(w http.ResponseWriter, r *http.Request) {
		var req UserDecryptRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("decode request: %v", err)})
			return
		}
		resp, err := s.Seal(r.Context(), &req)
		if err != nil {
			writeJSON(w, httpStatus(err), newErrorBody(err))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	logger.Debug("relayer handler ready", "path", UserDecryptPath)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Client talks to a remote relayer over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// UserDecrypt posts req and opens the sealed results locally. The private
// key stays in process.
func (c *Client) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[fhe.Handle]uint64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+UserDecryptPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer hresp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(hresp.Body, maxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if hresp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return nil, errorFromBody(hresp.StatusCode, eb)
	}
	var resp UserDecryptResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return Open(&resp, req.PublicKey, req.PrivateKey)
}
