package repository

import (
	"context"
	"testing"
	"time"

	"acu-chatbot-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.MessageRecord{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func botRecord(id string, ts time.Time) *model.MessageRecord {
	return &model.MessageRecord{
		ID: id, SessionID: "s1", Sender: model.RoleBot, Text: "cevap",
		Timestamp: ts, SourceTier: "rule", IntentName: "selamlasma", Complete: true,
	}
}

func TestMessageRepository_CreateAndFind(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	user := &model.MessageRecord{ID: "u1", SessionID: "s1", Sender: model.RoleUser, Text: "merhaba", Timestamp: now, Complete: true}
	require.NoError(t, repo.Create(ctx, user, botRecord("b1", now)))

	got, err := repo.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleBot, got.Sender)
	assert.Nil(t, got.Feedback)
	assert.True(t, got.Complete)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestMessageRepository_IncompleteStaysFalse(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	rec := botRecord("b1", time.Now())
	rec.Complete = false
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, got.Complete)
}

func TestMessageRepository_ToggleFeedback(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, botRecord("b1", time.Now())))

	got, err := repo.ToggleFeedback(ctx, "b1", model.FeedbackUp, "")
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, model.FeedbackUp, *got.Feedback)

	// 相反取值覆盖
	got, err = repo.ToggleFeedback(ctx, "b1", model.FeedbackDown, "yanlış bilgi")
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, model.FeedbackDown, *got.Feedback)
	assert.Equal(t, "yanlış bilgi", got.FeedbackText)

	// 相同取值清空
	got, err = repo.ToggleFeedback(ctx, "b1", model.FeedbackDown, "")
	require.NoError(t, err)
	assert.Nil(t, got.Feedback)
	assert.Empty(t, got.FeedbackText)

	_, err = repo.ToggleFeedback(ctx, "nope", model.FeedbackUp, "")
	assert.ErrorIs(t, err, model.ErrRecordNotFound)
}

func TestMessageRepository_ListSinceAndRecent(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, botRecord(uuid.NewString(), base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := repo.ListSince(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	since := base.Add(3 * time.Hour)
	later, err := repo.ListSince(ctx, &since)
	require.NoError(t, err)
	assert.Len(t, later, 2)

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Timestamp.After(recent[1].Timestamp))
}

func TestMessageRepository_ListSinceAcrossZones(t *testing.T) {
	repo := NewMessageRepository(newTestDB(t))
	ctx := context.Background()
	istanbul := time.FixedZone("+03", 3*60*60)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	old := botRecord("old", now.Add(-25*time.Hour).In(istanbul))
	fresh := botRecord("fresh", now.Add(-23*time.Hour).In(istanbul))
	require.NoError(t, repo.Create(ctx, old, fresh))

	since := now.Add(-24 * time.Hour)
	got, err := repo.ListSince(ctx, &since)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)

	// 以本地时区传入的 since 结果相同
	sinceLocal := since.In(istanbul)
	got, err = repo.ListSince(ctx, &sinceLocal)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}

func sessionRepos(t *testing.T) map[string]SessionRepository {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]SessionRepository{
		"memory": NewMemorySessionRepository(),
		"redis":  NewRedisSessionRepository(client, time.Hour),
	}
}

func TestSessionRepository_SaveGetDelete(t *testing.T) {
	for name, repo := range sessionRepos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := repo.Get(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, ok)

			now := time.Now().UTC().Truncate(time.Second)
			sess := &model.Session{ID: "s1", CreatedAt: now}
			sess.Append(20, model.Turn{Role: model.RoleUser, Text: "merhaba", Timestamp: now})
			require.NoError(t, repo.Save(ctx, sess))

			got, ok, err := repo.Get(ctx, "s1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, got.Turns, 1)
			assert.Equal(t, "merhaba", got.Turns[0].Text)
			assert.True(t, got.LastActiveAt.Equal(now))

			// 返回值是拷贝，修改不影响存储
			got.Turns[0].Text = "degisti"
			again, _, _ := repo.Get(ctx, "s1")
			assert.Equal(t, "merhaba", again.Turns[0].Text)

			require.NoError(t, repo.Delete(ctx, "s1"))
			_, ok, err = repo.Get(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemorySessionRepository_Prune(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Save(ctx, &model.Session{ID: "old", LastActiveAt: now.Add(-8 * 24 * time.Hour)}))
	require.NoError(t, repo.Save(ctx, &model.Session{ID: "new", LastActiveAt: now}))

	n, err := repo.Prune(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, _ := repo.Get(ctx, "new")
	assert.True(t, ok)
}

func TestRedisSessionRepository_TTLAndPrune(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRedisSessionRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &model.Session{ID: "s1", LastActiveAt: time.Now()}))
	assert.Equal(t, time.Hour, mr.TTL("session:s1"))

	// 没有 TTL 的遗留键
	require.NoError(t, mr.Set("session:legacy", `{"id":"legacy","last_active_at":"2020-01-01T00:00:00Z"}`))
	n, err := repo.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists("session:legacy"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}
