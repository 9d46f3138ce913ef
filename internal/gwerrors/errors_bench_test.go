package gwerrors

import (
	"net/http/httptest"
	"testing"
)

func BenchmarkWriteJSON_Base(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		ErrRouteNotFound.WriteJSON(w)
	}
}

func BenchmarkWriteJSON_WithRequestID(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		ErrRouteNotFound.WithRequestID("req-bench").WriteJSON(w)
	}
}
