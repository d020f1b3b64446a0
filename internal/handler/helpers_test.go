package handler

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/easybook/internal/middleware"
	"github.com/iliyamo/easybook/internal/utils"
)

const testSecret = "handler-secret"

// caller is the authenticated principal of a test request; a zero id means
// anonymous.
type caller struct {
	id   uint64
	role string
}

type request struct {
	method string
	route  string // echo route pattern
	target string // request URI
	body   string
	who    caller
	header map[string]string
}

// serve registers h on req.route, behind JWTAuth when req.who is set, and
// serves one request.
func serve(t *testing.T, req request, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var mw []echo.MiddlewareFunc
	if req.who.id != 0 {
		mw = append(mw, middleware.JWTAuth(testSecret))
	}
	e.Add(req.method, req.route, h, mw...)

	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.target, body)
	if req.body != "" {
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	if req.who.id != 0 {
		tok, err := utils.NewAccessToken(testSecret, req.who.id, req.who.role, 5)
		if err != nil {
			t.Fatalf("NewAccessToken: %v", err)
		}
		r.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	return rec
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

func wantBodyContains(t *testing.T, rec *httptest.ResponseRecorder, sub string) {
	t.Helper()
	if !strings.Contains(rec.Body.String(), sub) {
		t.Fatalf("body %s does not contain %q", rec.Body.String(), sub)
	}
}
