package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csvreorder/csvreorder/internal/tabular"
)

func parseString(t *testing.T, s string) (*tabular.Result, error) {
	t.Helper()
	return tabular.Parse(context.Background(), strings.NewReader(s), tabular.ParseOptions{})
}

func loadedSession(t *testing.T, csv string) *Session {
	t.Helper()
	sess := NewSession("test", tabular.WriteOptions{})
	res, err := parseString(t, csv)
	require.NoError(t, sess.FileLoaded("people.csv", res, err))
	return sess
}

func TestSession_StartsEmpty(t *testing.T) {
	sess := NewSession("s1", tabular.WriteOptions{})
	snap := sess.Snapshot()

	assert.Equal(t, StateEmpty, snap.State)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Empty(t, snap.Order)
	assert.False(t, snap.CanExport)
	assert.Nil(t, snap.Export)
	assert.Nil(t, snap.Error)
}

func TestSession_NameAgeScenario(t *testing.T) {
	sess := loadedSession(t, "Name,Age\nAl,30\nBo,25\n")
	require.Equal(t, StateLoaded, sess.State())

	require.NoError(t, sess.ColumnsReordered(1, 0))
	assert.Equal(t, StateReordered, sess.State())
	assert.Equal(t, []string{"Age", "Name"}, sess.Snapshot().Order)

	exp, err := sess.ExportRequested()
	require.NoError(t, err)
	assert.Equal(t, "Age,Name\n30,Al\n25,Bo\n", string(exp.Data))
	assert.Equal(t, "reordered_people.csv", exp.Filename)
	assert.Equal(t, 2, exp.Rows)
	assert.Equal(t, StateExported, sess.State())
}

func TestSession_RoundTrip(t *testing.T) {
	sess := loadedSession(t, "A,B,C\n1,2,3\n")

	require.NoError(t, sess.ColumnsReordered(2, 0))
	assert.Equal(t, []string{"C", "A", "B"}, sess.Snapshot().Order)

	exp, err := sess.ExportRequested()
	require.NoError(t, err)

	res, err := parseString(t, string(exp.Data))
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, res.Store.Header())
	require.Equal(t, 1, res.Store.Len())

	row := res.Store.Rows()[0]
	assert.Equal(t, 3.0, row["C"].Num)
	assert.Equal(t, 1.0, row["A"].Num)
	assert.Equal(t, 2.0, row["B"].Num)
}

func TestSession_HeaderOnlyFile(t *testing.T) {
	sess := loadedSession(t, "Name,Age\n")

	snap := sess.Snapshot()
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, 0, snap.Rows)
	assert.False(t, snap.CanExport)

	exp, err := sess.ExportRequested()
	assert.Nil(t, exp)
	assert.ErrorIs(t, err, ErrNoRows)
	assert.Equal(t, StateLoaded, sess.State())
	assert.Nil(t, sess.Snapshot().Export, "no handle produced")
}

func TestSession_HeaderlessFile(t *testing.T) {
	for name, input := range map[string]string{
		"empty":         "",
		"blank lines":   "\n\n   \n",
		"blank columns": ",,\n1,2,3\n",
	} {
		t.Run(name, func(t *testing.T) {
			sess := NewSession("s", tabular.WriteOptions{})
			res, perr := parseString(t, input)

			err := sess.FileLoaded("x.csv", res, perr)
			require.ErrorIs(t, err, ErrEmptyOrHeaderlessFile)
			assert.Equal(t, StateEmpty, sess.State())

			snap := sess.Snapshot()
			require.NotNil(t, snap.Error)
			assert.Equal(t, "FILE005", snap.Error.Code)
			assert.Contains(t, snap.Error.Message, "header row")
		})
	}
}

func TestSession_ZeroColumnResultIsHeaderless(t *testing.T) {
	sess := NewSession("s", tabular.WriteOptions{})
	res := &tabular.Result{Store: tabular.NewStore(nil, nil)}

	require.ErrorIs(t, sess.FileLoaded("x.csv", res, nil), ErrEmptyOrHeaderlessFile)
	require.ErrorIs(t, sess.FileLoaded("x.csv", nil, nil), ErrEmptyOrHeaderlessFile)
	assert.Equal(t, StateEmpty, sess.State())
}

func TestSession_ParseFailureInstallsNothing(t *testing.T) {
	sess := loadedSession(t, "A,B\n1,2\n")
	_, err := sess.ExportRequested()
	require.NoError(t, err)

	res, perr := parseString(t, "A,B\n\"unterminated,2\n")
	require.Error(t, perr)
	require.Nil(t, res)

	err = sess.FileLoaded("bad.csv", res, perr)
	require.ErrorIs(t, err, ErrParseFailure)

	snap := sess.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Empty(t, snap.Order)
	assert.Empty(t, snap.Filename)
	assert.Nil(t, snap.Export, "prior export discarded")
	require.NotNil(t, snap.Error)
	assert.Equal(t, "FILE002", snap.Error.Code)
}

func TestSession_ReorderRequiresFile(t *testing.T) {
	sess := NewSession("s", tabular.WriteOptions{})
	assert.ErrorIs(t, sess.ColumnsReordered(0, 0), ErrNoFileLoaded)
	assert.Equal(t, StateEmpty, sess.State())

	_, err := sess.ExportRequested()
	assert.ErrorIs(t, err, ErrNoFileLoaded)
}

func TestSession_ReorderOutOfRange(t *testing.T) {
	sess := loadedSession(t, "A,B,C\n1,2,3\n")
	require.NoError(t, sess.ColumnsReordered(0, 2))
	before := sess.Snapshot()

	err := sess.ColumnsReordered(0, 3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	after := sess.Snapshot()
	assert.Equal(t, before.Order, after.Order)
	assert.Equal(t, before.State, after.State)
	require.NotNil(t, after.Error, "condition is surfaced")
	assert.Equal(t, "ORD001", after.Error.Code)

	require.NoError(t, sess.ColumnsReordered(1, 1))
	assert.Nil(t, sess.Snapshot().Error, "a valid action clears the error")
}

func TestSession_NoOpMoveKeepsState(t *testing.T) {
	sess := loadedSession(t, "A,B\n1,2\n")
	require.NoError(t, sess.ColumnsReordered(1, 1))
	assert.Equal(t, StateLoaded, sess.State())
}

func TestSession_ReexportRevokesPreviousHandle(t *testing.T) {
	sess := loadedSession(t, "A,B\n1,2\n")

	first, err := sess.ExportRequested()
	require.NoError(t, err)
	second, err := sess.ExportRequested()
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = sess.Download(first.ID)
	assert.ErrorIs(t, err, ErrHandleRevoked)

	got, err := sess.Download(second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Data, got.Data)
}

func TestSession_ReorderAfterExportMarksStale(t *testing.T) {
	sess := loadedSession(t, "A,B\n1,2\n")
	exp, err := sess.ExportRequested()
	require.NoError(t, err)

	require.NoError(t, sess.ColumnsReordered(0, 1))
	snap := sess.Snapshot()
	assert.Equal(t, StateReordered, snap.State)
	require.NotNil(t, snap.Export)
	assert.True(t, snap.Export.Stale)

	_, err = sess.Download(exp.ID)
	require.NoError(t, err, "stale handle stays downloadable until superseded")

	exp2, err := sess.ExportRequested()
	require.NoError(t, err)
	assert.Equal(t, "B,A\n2,1\n", string(exp2.Data))
	assert.False(t, sess.Snapshot().Export.Stale)
}

func TestSession_NewLoadDiscardsPriorState(t *testing.T) {
	sess := loadedSession(t, "A,B\n1,2\n")
	require.NoError(t, sess.ColumnsReordered(0, 1))
	exp, err := sess.ExportRequested()
	require.NoError(t, err)

	res, perr := parseString(t, "X,Y,Z\n1,2,3\n")
	require.NoError(t, sess.FileLoaded("second.csv", res, perr))

	snap := sess.Snapshot()
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, []string{"X", "Y", "Z"}, snap.Order)
	assert.Equal(t, "second.csv", snap.Filename)
	assert.Nil(t, snap.Export)

	_, err = sess.Download(exp.ID)
	assert.ErrorIs(t, err, ErrHandleRevoked)
}

func TestSession_CloseRevokesHandle(t *testing.T) {
	sess := loadedSession(t, "A\n1\n")
	exp, err := sess.ExportRequested()
	require.NoError(t, err)

	sess.Close()
	assert.Equal(t, StateEmpty, sess.State())

	_, err = sess.Download(exp.ID)
	assert.ErrorIs(t, err, ErrHandleRevoked)
}

func TestSession_RaggedRowsExportRectangular(t *testing.T) {
	sess := loadedSession(t, "A,B,C\n1,2,3\n4\n")
	require.NoError(t, sess.ColumnsReordered(2, 0))

	exp, err := sess.ExportRequested()
	require.NoError(t, err)
	assert.Equal(t, "C,A,B\n3,1,2\n,4,\n", string(exp.Data))
}

func TestSession_ExportKeepsLexemes(t *testing.T) {
	sess := loadedSession(t, "price,flag,note\n1.50,TRUE,\"a, b\"\n")
	exp, err := sess.ExportRequested()
	require.NoError(t, err)
	assert.Equal(t, "price,flag,note\n1.50,TRUE,\"a, b\"\n", string(exp.Data))
}

func TestSession_CRLFExport(t *testing.T) {
	sess := NewSession("s", tabular.WriteOptions{UseCRLF: true})
	res, err := parseString(t, "A,B\n1,2\n")
	require.NoError(t, sess.FileLoaded("a.csv", res, err))

	exp, err := sess.ExportRequested()
	require.NoError(t, err)
	assert.Equal(t, "A,B\r\n1,2\r\n", string(exp.Data))
}

func TestSession_SnapshotPreview(t *testing.T) {
	var b strings.Builder
	b.WriteString("A,B\n")
	for i := 0; i < PreviewRows+3; i++ {
		b.WriteString("x,y\n")
	}
	sess := loadedSession(t, b.String())
	require.NoError(t, sess.ColumnsReordered(1, 0))

	snap := sess.Snapshot()
	assert.Equal(t, PreviewRows+3, snap.Rows)
	require.Len(t, snap.Preview, PreviewRows)
	assert.Equal(t, []string{"y", "x"}, snap.Preview[0])
	require.NotNil(t, snap.Stats)
}

func TestSession_SnapshotIsIndependent(t *testing.T) {
	sess := loadedSession(t, "A,B\n1,2\n")
	snap := sess.Snapshot()
	snap.Order[0] = "mutated"
	snap.Header[0] = "mutated"

	again := sess.Snapshot()
	assert.Equal(t, []string{"A", "B"}, again.Order)
	assert.Equal(t, []string{"A", "B"}, again.Header)
}

func TestSession_ActivityTracking(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sess := newSession("s", tabular.WriteOptions{}, func() time.Time { return now })
	assert.Equal(t, now, sess.LastActivity())

	now = now.Add(time.Minute)
	_ = sess.ColumnsReordered(0, 0)
	assert.Equal(t, now, sess.LastActivity())
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(ErrNoRows))
	assert.True(t, IsRecoverable(classifyParseError(errors.New("bad quote"))))
	assert.False(t, IsRecoverable(errors.New("boom")))
}
