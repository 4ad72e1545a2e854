package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content-type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"key": "value"})

		if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("encodes body as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusCreated, map[string]int{"site_no": 12})

		var got map[string]int
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["site_no"] != 12 {
			t.Errorf("body[site_no] = %d; want 12", got["site_no"])
		}
	})

	t.Run("unencodable value becomes 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]any{"ch": make(chan int)})

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Code = %d; want 500", w.Code)
		}
		var got ErrorBody
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got.Message != "failed to encode response" {
			t.Errorf("message = %q", got.Message)
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "invalid input")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusBadRequest)
	}
	var got ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got.Error != "Bad Request" || got.Message != "invalid input" {
		t.Errorf("body = %+v", got)
	}
}
