package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/cli"
	"quiz-ranking-service/internal/domain"
	"quiz-ranking-service/internal/infra/postgres"
	infraredis "quiz-ranking-service/internal/infra/redis"
	"quiz-ranking-service/internal/ranking"
)

type fixture struct {
	db           *bun.DB
	redis        *goredis.Client
	attempts     *app.AttemptService
	leaderboards *app.LeaderboardService
	ranker       *postgres.Ranker
	quizID       int64
	questionIDs  []int64
	users        []int64
}

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	f := setup(t, ctx)

	alice, bob := f.users[0], f.users[1]

	started, err := f.attempts.StartAttempt(ctx, alice, f.quizID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 2 {
		t.Fatalf("expected 2 active questions, got %d", len(started.Questions))
	}

	full := domain.Answers{
		f.questionIDs[0]: domain.SingleAnswer("B"),
		f.questionIDs[1]: domain.MultipleAnswer("A", "C"),
	}
	res, err := f.attempts.SubmitAttempt(ctx, app.Submission{
		UserID: alice, QuizID: f.quizID, Answers: full, TimeTaken: 120, StartTime: started.StartTime,
	})
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if !res.Score.Equal(decimal.NewFromInt(10)) || !res.MaxScore.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("alice score = %s/%s, want 10/10", res.Score, res.MaxScore)
	}

	if _, err := f.attempts.StartAttempt(ctx, alice, f.quizID); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected cooldown, got %v", err)
	}

	lb, err := f.leaderboards.QuizLeaderboard(ctx, app.LeaderboardQuery{QuizID: f.quizID})
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Leaderboard) != 1 || lb.Leaderboard[0].UserID != alice {
		t.Fatalf("leaderboard = %+v", lb.Leaderboard)
	}
	if n, err := f.redis.Exists(ctx, infraredis.Key(f.quizID)).Result(); err != nil || n != 1 {
		t.Fatalf("expected cached leaderboard, exists=%d err=%v", n, err)
	}

	partial := domain.Answers{
		f.questionIDs[0]: domain.SingleAnswer("B"),
		f.questionIDs[1]: domain.MultipleAnswer("A"),
	}
	res, err = f.attempts.SubmitAttempt(ctx, app.Submission{
		UserID: bob, QuizID: f.quizID, Answers: partial, TimeTaken: 90,
	})
	if err != nil {
		t.Fatalf("submit bob: %v", err)
	}
	if !res.Score.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("bob score = %s, want 7", res.Score)
	}
	if n, _ := f.redis.Exists(ctx, infraredis.Key(f.quizID)).Result(); n != 0 {
		t.Fatalf("expected cache invalidated after submit")
	}

	lb, err = f.leaderboards.QuizLeaderboard(ctx, app.LeaderboardQuery{
		QuizID: f.quizID, Limit: 1, IncludeUserRank: true, UserID: bob,
	})
	if err != nil {
		t.Fatalf("leaderboard after bob: %v", err)
	}
	if lb.Total != 2 || len(lb.Leaderboard) != 1 || lb.UserRank == nil || *lb.UserRank != 2 {
		t.Fatalf("leaderboard = %+v rank=%v", lb, lb.UserRank)
	}

	global, err := f.leaderboards.GlobalLeaderboard(ctx, app.GlobalQuery{Category: "science", Timeframe: domain.TimeframeWeek})
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	if len(global.Leaderboard) != 2 || global.Leaderboard[0].UserID != alice {
		t.Fatalf("global = %+v", global.Leaderboard)
	}
	if !global.Leaderboard[1].AveragePercentage.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("bob average = %s, want 70", global.Leaderboard[1].AveragePercentage)
	}

	history, err := f.attempts.History(ctx, domain.AttemptQuery{UserID: alice})
	if err != nil || len(history) != 1 || history[0].QuizTitle != "Physics" {
		t.Fatalf("history = %+v err=%v", history, err)
	}
	stats, err := f.attempts.Statistics(ctx, bob)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAttempts != 1 || !stats.BestScore.Equal(decimal.NewFromInt(7)) || len(stats.RecentAttempts) != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	if _, err := f.db.ExecContext(ctx, "UPDATE attempts SET score = 0"); err == nil {
		t.Fatalf("expected attempts to reject updates")
	}

	if _, err := f.db.NewDelete().Model(&postgres.QuizModel{ID: f.quizID}).WherePK().Exec(ctx); err != nil {
		t.Fatalf("soft delete quiz: %v", err)
	}
	if _, err := f.attempts.StartAttempt(ctx, bob, f.quizID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected deleted quiz to be hidden, got %v", err)
	}
	if _, err := f.attempts.Attempt(ctx, history[0].ID, alice); err != nil {
		t.Fatalf("owner lookup after quiz delete: %v", err)
	}
}

func TestQuizStandingsTiesInPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)
	f := setup(t, ctx)

	alice, bob, carol, dave, erin := f.users[0], f.users[1], f.users[2], f.users[3], f.users[4]
	t0 := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	names := map[int64]string{alice: "alice", bob: "bob", carol: "carol", dave: "dave", erin: "erin"}

	rows := []struct {
		user            int64
		score, maxScore int64
		at              time.Duration
	}{
		{alice, 8, 10, 2 * time.Hour},
		{bob, 5, 10, 0},
		{bob, 8, 10, time.Hour},
		{carol, 8, 16, 0},
		{dave, 6, 10, 0},
		{erin, 10, 10, 0},
	}
	var ranked []domain.RankedAttempt
	for _, r := range rows {
		m := postgres.AttemptModel{
			UserID:      r.user,
			QuizID:      f.quizID,
			Score:       decimal.NewFromInt(r.score),
			MaxScore:    decimal.NewFromInt(r.maxScore),
			Answers:     domain.Answers{f.questionIDs[0]: domain.SingleAnswer("B")},
			TimeTaken:   60,
			CompletedAt: t0.Add(r.at),
		}
		if _, err := f.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
			t.Fatalf("insert attempt: %v", err)
		}
		if r.user != erin {
			ranked = append(ranked, domain.RankedAttempt{
				UserID: r.user, UserName: names[r.user], QuizID: f.quizID,
				Score: m.Score, MaxScore: m.MaxScore, CompletedAt: m.CompletedAt,
			})
		}
	}
	if _, err := f.db.NewDelete().Model(&postgres.UserModel{ID: erin}).WherePK().Exec(ctx); err != nil {
		t.Fatalf("soft delete user: %v", err)
	}

	got, err := f.ranker.QuizStandings(ctx, f.quizID)
	if err != nil {
		t.Fatalf("quiz standings: %v", err)
	}
	want := []struct {
		user int64
		rank int
	}{{bob, 1}, {alice, 1}, {carol, 2}, {dave, 3}}
	if len(got) != len(want) {
		t.Fatalf("standings = %+v", got)
	}
	for i, w := range want {
		if got[i].UserID != w.user || got[i].Rank != w.rank {
			t.Fatalf("row %d = user %d rank %d, want user %d rank %d", i, got[i].UserID, got[i].Rank, w.user, w.rank)
		}
	}
	if !got[0].FirstCompletedAt.Equal(t0) || got[0].AttemptCount != 2 {
		t.Fatalf("bob = %+v", got[0])
	}
	if !got[2].Percentage.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("carol percentage = %s, want 50", got[2].Percentage)
	}

	inProcess := ranking.QuizStandings(ranked)
	for i := range got {
		g, p := got[i], inProcess[i]
		if g.UserID != p.UserID || g.Rank != p.Rank || !g.BestScore.Equal(p.BestScore) || !g.Percentage.Equal(p.Percentage) {
			t.Fatalf("row %d differs: postgres %+v, in-process %+v", i, g, p)
		}
	}
}

func setup(t *testing.T, ctx context.Context) *fixture {
	t.Helper()
	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgURL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { db.Close() })
	if err := cli.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	f := &fixture{db: db, redis: redisClient}
	seed(t, ctx, f)

	store := postgres.NewStore(db)
	cache := infraredis.NewLeaderboardCache(redisClient, 5*time.Minute)
	f.attempts = app.NewAttemptService(store, cache, app.AttemptOptions{})
	f.ranker = postgres.NewRanker(pool)
	f.leaderboards = app.NewLeaderboardService(store, f.ranker, cache)
	return f
}

func seed(t *testing.T, ctx context.Context, f *fixture) {
	t.Helper()
	for _, name := range []string{"alice", "bob", "carol", "dave", "erin"} {
		u := postgres.UserModel{Name: name}
		if _, err := f.db.NewInsert().Model(&u).Returning("id").Exec(ctx); err != nil {
			t.Fatalf("insert user: %v", err)
		}
		f.users = append(f.users, u.ID)
	}

	limit := 15
	quiz := postgres.QuizModel{Title: "Physics", Category: "science", TimeLimit: &limit}
	if _, err := f.db.NewInsert().Model(&quiz).Returning("id").Exec(ctx); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	f.quizID = quiz.ID

	questions := []domain.Question{
		{QuizID: quiz.ID, Text: "Unit of force?", Options: []string{"A", "B", "C"},
			Type: domain.QuestionSingle, CorrectAnswer: domain.SingleAnswer("B"), Points: 4},
		{QuizID: quiz.ID, Text: "Vector quantities?", Options: []string{"A", "B", "C", "D"},
			Type: domain.QuestionMultiple, CorrectAnswer: domain.MultipleAnswer("A", "C"), Points: 6},
		{QuizID: quiz.ID, Text: "Retired question", Options: []string{"A", "B"},
			Type: domain.QuestionSingle, CorrectAnswer: domain.SingleAnswer("A"), Points: 10},
	}
	for i, q := range questions {
		m := postgres.QuestionModelFrom(q)
		if _, err := f.db.NewInsert().Model(&m).Returning("id").Exec(ctx); err != nil {
			t.Fatalf("insert question: %v", err)
		}
		if i == len(questions)-1 {
			if _, err := f.db.NewDelete().Model(&m).WherePK().Exec(ctx); err != nil {
				t.Fatalf("soft delete question: %v", err)
			}
			continue
		}
		f.questionIDs = append(f.questionIDs, m.ID)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
