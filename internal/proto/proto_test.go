package proto

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"testing"
)

func TestVersionSupported(t *testing.T) {
	tests := []struct {
		v    int
		want bool
	}{
		{113, true},
		{114, true},
		{115, true},
		{116, true},
		{112, false},
		{117, false},
		{108, false},
		{0, false},
	}
	for _, tt := range tests {
		if got := VersionSupported(tt.v); got != tt.want {
			t.Errorf("VersionSupported(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestCheckVersion_Unsupported(t *testing.T) {
	err := CheckVersion(108)
	if err == nil {
		t.Fatal("CheckVersion(108) = nil, want UnsupportedVersion")
	}
	if KindOf(err) != UnsupportedVersion {
		t.Errorf("KindOf = %q, want %q", KindOf(err), UnsupportedVersion)
	}
}

func TestTaskCode_VersionGate(t *testing.T) {
	tests := []struct {
		v     int
		paper int
		q     int
		want  string
	}{
		{116, 17, 3, "0017g3"},
		{115, 17, 3, "0017g3"},
		{114, 17, 3, "q0017g3"},
		{113, 1234, 10, "q1234g10"},
	}
	for _, tt := range tests {
		if got := TaskCode(tt.v, tt.paper, tt.q); got != tt.want {
			t.Errorf("TaskCode(%d, %d, %d) = %q, want %q", tt.v, tt.paper, tt.q, got, tt.want)
		}
	}
}

func TestParseTaskCode(t *testing.T) {
	tests := []struct {
		code      string
		paper, q  int
		wantError bool
	}{
		{"0017g3", 17, 3, false},
		{"q0017g3", 17, 3, false},
		{"1234g10", 1234, 10, false},
		{"nonsense", 0, 0, true},
		{"g3", 0, 0, true},
		{"0017g", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		paper, q, err := ParseTaskCode(tt.code)
		if tt.wantError {
			if err == nil {
				t.Errorf("ParseTaskCode(%q) = nil error, want error", tt.code)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTaskCode(%q) error: %v", tt.code, err)
			continue
		}
		if paper != tt.paper || q != tt.q {
			t.Errorf("ParseTaskCode(%q) = (%d, %d), want (%d, %d)", tt.code, paper, q, tt.paper, tt.q)
		}
	}
}

func TestTaskCode_RoundTrip(t *testing.T) {
	for _, v := range SupportedVersions {
		code := TaskCode(v, 42, 7)
		paper, q, err := ParseTaskCode(code)
		if err != nil {
			t.Fatalf("ParseTaskCode(%q) at v=%d: %v", code, v, err)
		}
		if paper != 42 || q != 7 {
			t.Errorf("round trip at v=%d: got (%d, %d)", v, paper, q)
		}
	}
}

func TestEncodeRubricIDs(t *testing.T) {
	ids := []string{"r-1", "r-2"}

	got := EncodeRubricIDs(116, ids)
	if !reflect.DeepEqual(got, ids) {
		t.Errorf("EncodeRubricIDs(116) = %v, want list", got)
	}

	got = EncodeRubricIDs(113, ids)
	if got != "r-1,r-2" {
		t.Errorf("EncodeRubricIDs(113) = %v, want comma string", got)
	}

	if got := EncodeRubricIDs(116, nil); !reflect.DeepEqual(got, []string{}) {
		t.Errorf("EncodeRubricIDs(116, nil) = %v, want empty list", got)
	}
}

func TestDecodeRubricIDs(t *testing.T) {
	want := []string{"r-1", "r-2"}

	if got := DecodeRubricIDs("r-1,r-2"); !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeRubricIDs(string) = %v, want %v", got, want)
	}
	if got := DecodeRubricIDs([]string{"r-1", "r-2"}); !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeRubricIDs([]string) = %v, want %v", got, want)
	}
	// JSON decoding yields []interface{}.
	if got := DecodeRubricIDs([]interface{}{"r-1", "r-2"}); !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeRubricIDs([]interface{}) = %v, want %v", got, want)
	}
	if got := DecodeRubricIDs(""); got != nil {
		t.Errorf("DecodeRubricIDs(\"\") = %v, want nil", got)
	}
}

func TestKindOf(t *testing.T) {
	err := Errf(AlreadyClaimed, "task %s claimed by %s", "0017g3", "iris")
	if KindOf(err) != AlreadyClaimed {
		t.Errorf("KindOf = %q, want %q", KindOf(err), AlreadyClaimed)
	}

	wrapped := fmt.Errorf("claim: %w", err)
	if KindOf(wrapped) != AlreadyClaimed {
		t.Errorf("KindOf(wrapped) = %q, want %q", KindOf(wrapped), AlreadyClaimed)
	}

	if KindOf(errors.New("plain")) != Internal {
		t.Errorf("KindOf(plain) = %q, want %q", KindOf(errors.New("plain")), Internal)
	}
}

func TestRetriable(t *testing.T) {
	retriable := []Kind{NetworkTimeout, ConnectionError}
	for _, k := range retriable {
		if !k.Retriable() {
			t.Errorf("%q.Retriable() = false, want true", k)
		}
	}
	notRetriable := []Kind{
		AuthenticationFailed, AlreadyClaimed, TaskChanged, TaskDeleted,
		VersionMismatch, IntegrityConflict, UnsupportedVersion,
		QuotaExceeded, NoPermission, ValidationFailed,
	}
	for _, k := range notRetriable {
		if k.Retriable() {
			t.Errorf("%q.Retriable() = true, want false", k)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{AuthenticationFailed, http.StatusUnauthorized},
		{AlreadyClaimed, http.StatusConflict},
		{VersionMismatch, http.StatusExpectationFailed},
		{NoSuchTask, http.StatusGone},
		{QuotaExceeded, http.StatusTooManyRequests},
		{NoPermission, http.StatusForbidden},
		{Internal, http.StatusInternalServerError},
		{Kind("never_heard_of_it"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.HTTPStatus(); got != tt.want {
			t.Errorf("%q.HTTPStatus() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
