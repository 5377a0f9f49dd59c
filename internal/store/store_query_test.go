package store

import (
	"context"
	"testing"
	"time"

	"checkin-system/internal/status"
	"checkin-system/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, loc *time.Location) (*Store, core.App) {
	t.Helper()
	app, err := tests.NewTestApp(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	attendance := attendanceCollection()
	attendance.AddIndex("idx_attendance_user_session", true, "user_id, session_id", "")

	staff := core.NewBaseCollection(CollectionStaff)
	staff.Fields.Add(
		&core.TextField{Name: "production_id"},
		&core.TextField{Name: "user_id"},
		&core.TextField{Name: "role"},
	)

	for _, c := range []*core.Collection{sessionsCollection(), attendance, staff} {
		require.NoError(t, app.Save(c))
	}
	return New(app, loc), app
}

func insert(t *testing.T, app core.App, collection string, fields map[string]any) *core.Record {
	t.Helper()
	c, err := app.FindCollectionByNameOrId(collection)
	require.NoError(t, err)
	r := core.NewRecord(c)
	for k, v := range fields {
		r.Set(k, v)
	}
	require.NoError(t, app.Save(r))
	return r
}

func TestStore_FindTodaySession(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	st, app := newTestStore(t, est)
	ctx := context.Background()

	day := func(d, h int) time.Time { return time.Date(2026, 10, d, h, 0, 0, 0, time.UTC) }
	insert(t, app, CollectionSessions, map[string]any{"production_id": "p1", "start_time": day(17, 4)})  // 16th in EST
	insert(t, app, CollectionSessions, map[string]any{"production_id": "p1", "start_time": day(17, 23)}) // 18:00 EST
	early := insert(t, app, CollectionSessions, map[string]any{"production_id": "p1", "start_time": day(17, 20)})
	insert(t, app, CollectionSessions, map[string]any{"production_id": "p1", "start_time": day(18, 6)}) // 18th in EST

	// 02:30 UTC on the 18th is the evening of the 17th in EST
	session, err := st.FindTodaySession(ctx, time.Date(2026, 10, 18, 2, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, early.Id, session.ID)
	assert.True(t, day(17, 20).Equal(session.StartTime))

	session, err = st.FindTodaySession(ctx, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestStore_ListStaffByRole(t *testing.T) {
	st, app := newTestStore(t, time.UTC)
	ctx := context.Background()

	insert(t, app, CollectionStaff, map[string]any{"production_id": "p1", "user_id": "sm", "role": models.RoleStageManager})
	insert(t, app, CollectionStaff, map[string]any{"production_id": "p1", "user_id": "dir", "role": "director"})
	insert(t, app, CollectionStaff, map[string]any{"production_id": "p1", "user_id": "adm", "role": "admin"})
	insert(t, app, CollectionStaff, map[string]any{"production_id": "p2", "user_id": "other", "role": models.RoleStageManager})

	staff, err := st.ListStaff(ctx, "p1", []string{models.RoleStageManager, "director"})
	require.NoError(t, err)

	ids := make([]string, len(staff))
	for i, s := range staff {
		ids[i] = s.UserID
	}
	assert.ElementsMatch(t, []string{"sm", "dir"}, ids)

	staff, err = st.ListStaff(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Empty(t, staff)
}

func TestStore_AttendanceOncePerSession(t *testing.T) {
	st, _ := newTestStore(t, time.UTC)
	ctx := context.Background()

	rec := models.AttendanceRecord{
		UserID:      "u1",
		UserName:    "Alice",
		SessionID:   "s1",
		CheckInTime: time.Date(2026, 10, 17, 18, 55, 0, 0, time.UTC),
		Status:      models.AttendancePresent,
	}

	missing, err := st.FindAttendance(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	saved, err := st.AddAttendance(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	_, err = st.AddAttendance(ctx, rec)
	assert.ErrorIs(t, err, status.ErrDuplicateCheckIn)

	found, err := st.FindAttendance(ctx, "u1", "s1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, saved.ID, found.ID)

	later := rec
	later.UserID = "u2"
	later.CheckInTime = rec.CheckInTime.Add(10 * time.Minute)
	_, err = st.AddAttendance(ctx, later)
	require.NoError(t, err)

	list, err := st.ListAttendanceBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID)
	assert.Equal(t, "u2", list[1].UserID)
}
