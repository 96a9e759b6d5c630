package forest

import (
	"testing"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/EmpoweredVote/forestwatch/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestCheckAgainst(t *testing.T) {
	cur := DeforestationDetection{GID: 42, Area: 1000}
	cases := []struct {
		name    string
		area    *float64
		ratio   float64
		wantErr bool
	}{
		{name: "no area", area: nil, ratio: 1.5},
		{name: "within ratio", area: ptr(1500.0), ratio: 1.5},
		{name: "zero", area: ptr(0.0), ratio: 1.5},
		{name: "negative", area: ptr(-1.0), ratio: 1.5, wantErr: true},
		{name: "too large", area: ptr(1500.01), ratio: 1.5, wantErr: true},
		{name: "ratio disabled", area: ptr(1e9), ratio: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerificationPatch{Status: StatusVerified, VerifiedArea: tc.area, MaxAreaRatio: tc.ratio}.CheckAgainst(cur)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperrors.ErrValidation)
			require.Equal(t, apperrors.CodeInvalidArea, apperrors.Code(err))
		})
	}
}

func TestCheckAgainstUnknownDetectedArea(t *testing.T) {
	// An unmeasured detection cannot bound the verified area.
	err := VerificationPatch{VerifiedArea: ptr(5000.0), MaxAreaRatio: 1.5}.CheckAgainst(DeforestationDetection{Area: 0})
	require.NoError(t, err)
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	oldReason := "initial"
	cur := DeforestationDetection{GID: 42, Area: 1000, Status: StatusUnverified, Reason: &oldReason}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next := VerificationPatch{Status: StatusVerified, VerifiedArea: ptr(900.0)}.Apply(cur, "analyst", now)

	require.Equal(t, StatusUnverified, cur.Status)
	require.Nil(t, cur.VerifiedArea)
	require.Nil(t, cur.VerifiedBy)

	require.Equal(t, StatusVerified, next.Status)
	require.Equal(t, 900.0, *next.VerifiedArea)
	require.Equal(t, "analyst", *next.VerifiedBy)
	require.Equal(t, now, *next.VerifiedAt)
	require.Equal(t, now, next.UpdatedAt)
	// nil patch fields keep the stored value
	require.Equal(t, "initial", *next.Reason)
}

func TestNewAuditEntry(t *testing.T) {
	cur := DeforestationDetection{GID: 42, Status: StatusUnverified}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := VerificationPatch{Status: StatusRejected, Notes: ptr("cloud shadow")}.Apply(cur, "analyst", now)

	e := NewAuditEntry(cur, next, utils.Provenance{Actor: "analyst", ClientIP: "10.1.1.1", RequestID: "r1"}, now)
	require.NotEqual(t, [16]byte{}, [16]byte(e.ID))
	require.EqualValues(t, 42, e.GID)
	require.Equal(t, ActionVerify, e.Action)
	require.Equal(t, StatusUnverified, e.OldStatus)
	require.Equal(t, StatusRejected, e.NewStatus)
	require.Nil(t, e.OldNotes)
	require.Equal(t, "cloud shadow", *e.NewNotes)
	require.Nil(t, e.OldVerifiedBy)
	require.Equal(t, "analyst", *e.NewVerifiedBy)
	require.Equal(t, "10.1.1.1", e.ClientIP)
	require.Equal(t, now, e.ChangedAt)
	require.Nil(t, e.OldVerifiedAt)
	require.Equal(t, now, *e.NewVerifiedAt)

	// a second verification carries the previous verified_at as its old value
	later := now.Add(time.Hour)
	again := VerificationPatch{Status: StatusVerified}.Apply(next, "lead", later)
	e2 := NewAuditEntry(next, again, utils.Provenance{Actor: "lead"}, later)
	require.Equal(t, now, *e2.OldVerifiedAt)
	require.Equal(t, later, *e2.NewVerifiedAt)
}

func TestUpdateColumnsOnlyTouchesVerificationState(t *testing.T) {
	cols := updateColumns(DeforestationDetection{Status: StatusVerified})
	for _, forbidden := range []string{"geom", "area", "start_date", "end_date", "gid"} {
		require.NotContains(t, cols, forbidden)
	}
	require.Contains(t, cols, "status")
	require.Contains(t, cols, "verified_at")
}

func TestParseStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseStatus("approved")
	require.Equal(t, apperrors.CodeInvalidStatus, apperrors.Code(err))
	require.Equal(t, 422, apperrors.HTTPStatus(err))
}
