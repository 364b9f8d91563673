package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"youbble/core/apperr"
	"youbble/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestLoadCatalog_MissingFilesAreEmpty(t *testing.T) {
	c, err := LoadCatalog(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, c.Releases())
	require.Empty(t, c.Featured())
	require.Empty(t, c.Merch())

	_, err = c.LatestPodcast()
	require.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestLoadCatalog_ReadsFiles(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, releasesFile), []model.Release{
		{ID: "1", Title: "Night Drive", Featured: true},
		{ID: "2", Title: "B-Side"},
	})
	writeJSON(t, filepath.Join(dir, merchFile), []model.MerchItem{{ID: "m1", Name: "Tee", Price: "25.00"}})
	writeJSON(t, filepath.Join(dir, podcastsFile), []model.PodcastEpisode{
		{ID: "p1", Title: "Ep 1", PublishDate: "2024-01-10"},
		{ID: "p3", Title: "Ep 3", PublishDate: "2024-03-02"},
		{ID: "p2", Title: "Ep 2", PublishDate: "2024-02-14"},
	})

	c, err := LoadCatalog(dir)
	require.NoError(t, err)
	require.Len(t, c.Releases(), 2)
	require.Len(t, c.Featured(), 1)
	require.Equal(t, "Night Drive", c.Featured()[0].Title)
	require.Len(t, c.Merch(), 1)

	eps := c.Podcasts()
	require.Equal(t, []string{"p3", "p2", "p1"}, []string{eps[0].ID, eps[1].ID, eps[2].ID})
	latest, err := c.LatestPodcast()
	require.NoError(t, err)
	require.Equal(t, "p3", latest.ID)
}

func TestLoadCatalog_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, merchFile), []byte("{not json"), 0644))
	_, err := LoadCatalog(dir)
	require.Error(t, err)
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c := NewCatalog([]model.Release{{ID: "1", Title: "A"}}, nil, nil)
	got := c.Releases()
	got[0].Title = "changed"
	require.Equal(t, "A", c.Releases()[0].Title)
}

func TestJSONInbox_AppendsRecords(t *testing.T) {
	dir := t.TempDir()
	r, err := NewJSONInboxRepository(dir)
	require.NoError(t, err)
	ctx := context.Background()

	d1, err := r.CreateDemo(ctx, model.DemoSubmission{ArtistName: "A", Email: "a@x.com", Bio: "bio"})
	require.NoError(t, err)
	d2, err := r.CreateDemo(ctx, model.DemoSubmission{ArtistName: "B", Email: "b@x.com", Bio: "bio"})
	require.NoError(t, err)
	require.NotEqual(t, d1.ID, d2.ID)
	require.False(t, d1.SubmittedAt.IsZero())

	c, err := r.CreateCollaboration(ctx, model.CollaborationRequest{Name: "C", Email: "c@x.com", CollaborationType: "remix", Message: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, c.ID)

	raw, err := os.ReadFile(filepath.Join(dir, "demos.json"))
	require.NoError(t, err)
	var demos []model.DemoSubmission
	require.NoError(t, json.Unmarshal(raw, &demos))
	require.Len(t, demos, 2)
	require.Equal(t, "B", demos[1].ArtistName)

	raw, err = os.ReadFile(filepath.Join(dir, "collaborations.json"))
	require.NoError(t, err)
	var collabs []model.CollaborationRequest
	require.NoError(t, json.Unmarshal(raw, &collabs))
	require.Len(t, collabs, 1)
}

func TestGormInbox_CreateDemo(t *testing.T) {
	conn, mock := newSQLMockDB(t)
	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: conn, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `demo_submissions`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	demo, err := NewGormInboxRepository(gdb).CreateDemo(context.Background(),
		model.DemoSubmission{ArtistName: "A", Email: "a@x.com", Bio: "bio"})
	require.NoError(t, err)
	require.Len(t, demo.ID, 36)
	require.NoError(t, mock.ExpectationsWereMet())
}
