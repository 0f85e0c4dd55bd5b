package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestFlowError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("callback: %w", NewFlowError(KindStateMismatch, "", nil))

	if !errors.Is(err, KindStateMismatch) {
		t.Error("expected errors.Is to match KindStateMismatch")
	}
	if errors.Is(err, KindTokenExchangeFailed) {
		t.Error("expected errors.Is not to match another kind")
	}
	if KindOf(err) != KindStateMismatch {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindStateMismatch)
	}
}

func TestFlowError_ErrorIncludesDetailAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewFlowError(KindTokenExchangeFailed, "invalid_grant", cause)

	want := "token_exchange_failed: invalid_grant: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
}

func TestKindOf_PlainError_ReturnsEmpty(t *testing.T) {
	if got := KindOf(errors.New("x")); got != "" {
		t.Errorf("KindOf() = %q, want empty", got)
	}
}

func TestNewAPIErrorFromKind_UsesKindAsCode(t *testing.T) {
	kinds := []ErrorKind{
		KindProviderDenied, KindMissingAuthorizationCode, KindStateMismatch,
		KindTokenExchangeFailed, KindIdentityFetchFailed, KindUnauthenticated,
		KindPersistenceFailed, KindNotLinked, KindListingNotFound,
		KindCompetitorSearchFailed, KindNoCompetitorsFound,
	}
	for _, k := range kinds {
		apiErr := NewAPIErrorFromKind(k)
		if apiErr.Code != string(k) {
			t.Errorf("Code = %q, want %q", apiErr.Code, k)
		}
		if apiErr.Message == "" || apiErr.Action == "" {
			t.Errorf("kind %q should have message and action", k)
		}
	}

	if NewAPIErrorFromKind("").Code != "INTERNAL_ERROR" {
		t.Error("unknown kind should map to INTERNAL_ERROR")
	}
}

func TestProfile_IsLinked(t *testing.T) {
	var nilProfile *Profile
	if nilProfile.IsLinked() {
		t.Error("nil profile should not be linked")
	}
	if (&Profile{}).IsLinked() {
		t.Error("profile without linked identity should not be linked")
	}
	p := &Profile{Linked: &LinkedIdentity{AccessToken: "tok", ExternalUserID: "1", ExternalNickname: "n"}}
	if !p.IsLinked() {
		t.Error("profile with access token should be linked")
	}
}
