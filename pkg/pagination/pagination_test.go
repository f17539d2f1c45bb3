package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(newContext("/"))
	if p.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, DefaultLimit)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestFromContext_Explicit(t *testing.T) {
	p := FromContext(newContext("/?limit=25&offset=5"))
	if p.Limit != 25 {
		t.Errorf("Limit = %d, want 25", p.Limit)
	}
	if p.Offset != 5 {
		t.Errorf("Offset = %d, want 5", p.Offset)
	}
}

func TestFromContext_ClampsLimit(t *testing.T) {
	p := FromContext(newContext("/?limit=5000"))
	if p.Limit != MaxLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, MaxLimit)
	}
}

func TestFromContext_RejectsNegative(t *testing.T) {
	p := FromContext(newContext("/?limit=-3&offset=-10"))
	if p.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", p.Limit, DefaultLimit)
	}
	if p.Offset != 0 {
		t.Errorf("Offset = %d, want 0", p.Offset)
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Limit: 10, Offset: 30}
	if got, want := p.SQL(), "LIMIT 10 OFFSET 30"; got != want {
		t.Errorf("SQL() = %q, want %q", got, want)
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	if !p.HasNext(25) {
		t.Error("HasNext(25) = false, want true")
	}
	if p.HasNext(20) {
		t.Error("HasNext(20) = true, want false")
	}
	if !p.HasPrevious() {
		t.Error("HasPrevious() = false, want true")
	}
	if got := p.NextOffset(); got != 20 {
		t.Errorf("NextOffset() = %d, want 20", got)
	}
	if got := p.PreviousOffset(); got != 0 {
		t.Errorf("PreviousOffset() = %d, want 0", got)
	}
}

func TestParams_PreviousOffset_Floor(t *testing.T) {
	p := Params{Limit: 10, Offset: 4}
	if got := p.PreviousOffset(); got != 0 {
		t.Errorf("PreviousOffset() = %d, want 0", got)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore {
		t.Error("HasMore = false, want true")
	}
	last := NewResponse([]int{1}, 10, 3, 9)
	if last.HasMore {
		t.Error("HasMore = true, want false on last page")
	}
}
