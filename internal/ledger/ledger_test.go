package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/metrics"
	"github.com/Clark-Hu/cinerate/internal/pgtest"
	"github.com/Clark-Hu/cinerate/internal/repository"
	"github.com/Clark-Hu/cinerate/internal/store"
)

type testEnv struct {
	ctx     context.Context
	repo    *repository.Repository
	ledger  *Ledger
	metrics *metrics.Metrics
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	pool := pgtest.Start(t, "ledger_test")
	st := store.NewWithPool(pool, zap.NewNop())
	repo := repository.New(st)
	m := metrics.New(prometheus.NewRegistry())
	return &testEnv{
		ctx:     context.Background(),
		repo:    repo,
		ledger:  New(st, repo, zap.NewNop(), m),
		metrics: m,
	}
}

func (env *testEnv) movie(t testing.TB, tmdbID int64) domain.Movie {
	t.Helper()
	movie, err := env.repo.Movies.Create(env.ctx, domain.MovieInput{TMDBID: tmdbID, Title: fmt.Sprintf("Movie %d", tmdbID)})
	if err != nil {
		t.Fatalf("create movie %d: %v", tmdbID, err)
	}
	return movie
}

func (env *testEnv) user(t testing.TB, name string) authz.Actor {
	t.Helper()
	u, err := env.repo.Users.Create(env.ctx, repository.UserCreateParams{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user %q: %v", name, err)
	}
	return authz.Actor{UserID: u.ID}
}

func (env *testEnv) admin(t testing.TB, name string) authz.Actor {
	t.Helper()
	a := env.user(t, name)
	a.IsSuperuser = true
	return a
}

func (env *testEnv) storedAverage(t testing.TB, tmdbID int64) float64 {
	t.Helper()
	movie, err := env.repo.Movies.GetByTMDBID(env.ctx, tmdbID)
	if err != nil {
		t.Fatalf("get movie %d: %v", tmdbID, err)
	}
	return movie.AverageRating
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRatingAverageFollowsLedger(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 550)
	alice, bob, carol := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "carol")

	steps := []struct {
		name string
		run  func() (float64, error)
		want float64
	}{
		{"alice rates 8", func() (float64, error) {
			c, err := env.ledger.SubmitRating(env.ctx, alice, 550, 8)
			return c.Average, err
		}, 8},
		{"bob rates 6", func() (float64, error) {
			c, err := env.ledger.SubmitRating(env.ctx, bob, 550, 6)
			return c.Average, err
		}, 7},
		{"carol rates 10", func() (float64, error) {
			c, err := env.ledger.SubmitRating(env.ctx, carol, 550, 10)
			return c.Average, err
		}, 8},
	}
	for _, s := range steps {
		got, err := s.run()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if !approx(got, s.want) || !approx(env.storedAverage(t, 550), s.want) {
			t.Fatalf("%s: average = %v (stored %v), want %v", s.name, got, env.storedAverage(t, 550), s.want)
		}
	}

	ratings, err := env.ledger.ListRatings(env.ctx, 550)
	if err != nil {
		t.Fatalf("list ratings: %v", err)
	}
	var bobs domain.Rating
	for _, r := range ratings {
		if r.UserID == bob.UserID {
			bobs = r
		}
	}
	avg, err := env.ledger.DeleteRating(env.ctx, bob, 550, bobs.ID)
	if err != nil {
		t.Fatalf("delete bob's rating: %v", err)
	}
	if !approx(avg, 9) || !approx(env.storedAverage(t, 550), 9) {
		t.Fatalf("average after delete = %v, want 9", avg)
	}

	if got := testutil.ToFloat64(env.metrics.AverageRecomputes); got != 4 {
		t.Fatalf("recomputes = %v, want 4", got)
	}
}

func TestRatingAverageResetsToZero(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 1)
	alice := env.user(t, "alice")

	change, err := env.ledger.SubmitRating(env.ctx, alice, 1, 4.5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	avg, err := env.ledger.DeleteRating(env.ctx, alice, 1, change.Rating.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if avg != 0 || env.storedAverage(t, 1) != 0 {
		t.Fatalf("average = %v, want 0 with no ratings", avg)
	}
}

func TestUpdateRatingRecomputes(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 2)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	a, err := env.ledger.SubmitRating(env.ctx, alice, 2, 2)
	if err != nil {
		t.Fatalf("submit alice: %v", err)
	}
	if _, err := env.ledger.SubmitRating(env.ctx, bob, 2, 4); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	change, err := env.ledger.UpdateRating(env.ctx, alice, 2, a.Rating.ID, 8)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if change.Rating.Score != 8 || !approx(change.Average, 6) {
		t.Fatalf("change = %+v, want score 8 average 6", change)
	}

	_, err = env.ledger.UpdateRating(env.ctx, bob, 2, a.Rating.ID, 1)
	if !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("update by non-owner err = %v, want permission", err)
	}
	if !approx(env.storedAverage(t, 2), 6) {
		t.Fatalf("average changed after rejected update: %v", env.storedAverage(t, 2))
	}
}

func TestRatingErrors(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 3)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	admin := env.admin(t, "root")

	first, err := env.ledger.SubmitRating(env.ctx, alice, 3, 7)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"duplicate rating", func() error {
			_, err := env.ledger.SubmitRating(env.ctx, alice, 3, 9)
			return err
		}, domain.ErrConflict},
		{"score above range", func() error {
			_, err := env.ledger.SubmitRating(env.ctx, bob, 3, 10.5)
			return err
		}, domain.ErrValidation},
		{"score below range", func() error {
			_, err := env.ledger.SubmitRating(env.ctx, bob, 3, -1)
			return err
		}, domain.ErrValidation},
		{"score NaN", func() error {
			_, err := env.ledger.SubmitRating(env.ctx, bob, 3, math.NaN())
			return err
		}, domain.ErrValidation},
		{"missing movie", func() error {
			_, err := env.ledger.SubmitRating(env.ctx, bob, 999, 5)
			return err
		}, domain.ErrNotFound},
		{"anonymous", func() error {
			_, err := env.ledger.SubmitRating(env.ctx, authz.Actor{}, 3, 5)
			return err
		}, domain.ErrPermission},
		{"missing rating", func() error {
			_, err := env.ledger.UpdateRating(env.ctx, alice, 3, first.Rating.ID+100, 5)
			return err
		}, domain.ErrNotFound},
		{"delete by stranger", func() error {
			_, err := env.ledger.DeleteRating(env.ctx, bob, 3, first.Rating.ID)
			return err
		}, domain.ErrPermission},
		{"update by superuser", func() error {
			_, err := env.ledger.UpdateRating(env.ctx, admin, 3, first.Rating.ID, 1)
			return err
		}, domain.ErrPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if !approx(env.storedAverage(t, 3), 7) {
		t.Fatalf("average = %v after failed operations, want 7", env.storedAverage(t, 3))
	}
	ratings, err := env.ledger.ListRatings(env.ctx, 3)
	if err != nil || len(ratings) != 1 {
		t.Fatalf("ratings = %v, %v; want exactly one", ratings, err)
	}

	if _, err := env.ledger.DeleteRating(env.ctx, admin, 3, first.Rating.ID); err != nil {
		t.Fatalf("superuser delete: %v", err)
	}
	if got := testutil.ToFloat64(env.metrics.LedgerOps.WithLabelValues("submit_rating", "conflict")); got != 1 {
		t.Fatalf("conflict outcomes = %v, want 1", got)
	}
}

func TestConcurrentRatingsAllCounted(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 4)

	const workers = 8
	actors := make([]authz.Actor, workers)
	for i := range actors {
		actors[i] = env.user(t, fmt.Sprintf("u%d", i))
	}

	var wg sync.WaitGroup
	for i, a := range actors {
		wg.Add(1)
		go func(a authz.Actor, score float64) {
			defer wg.Done()
			if _, err := env.ledger.SubmitRating(env.ctx, a, 4, score); err != nil {
				t.Errorf("submit %d: %v", a.UserID, err)
			}
		}(a, float64(i+1))
	}
	wg.Wait()

	// mean of 1..8
	if got := env.storedAverage(t, 4); !approx(got, 4.5) {
		t.Fatalf("average = %v, want 4.5", got)
	}
}

func TestRatedMovies(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 10)
	env.movie(t, 11)
	env.movie(t, 12)
	alice := env.user(t, "alice")

	for _, id := range []int64{12, 10} {
		if _, err := env.ledger.SubmitRating(env.ctx, alice, id, 5); err != nil {
			t.Fatalf("submit %d: %v", id, err)
		}
	}
	movies, err := env.ledger.RatedMovies(env.ctx, alice)
	if err != nil {
		t.Fatalf("rated movies: %v", err)
	}
	if len(movies) != 2 || movies[0].TMDBID != 10 || movies[1].TMDBID != 12 {
		t.Fatalf("rated movies = %+v, want 10 and 12", movies)
	}
}

func TestMyRating(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 30)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	if _, err := env.ledger.SubmitRating(env.ctx, alice, 30, 7.5); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := env.ledger.MyRating(env.ctx, alice, 30)
	if err != nil {
		t.Fatalf("my rating: %v", err)
	}
	if got.UserID != alice.UserID || !approx(got.Score, 7.5) {
		t.Fatalf("rating = %+v", got)
	}
	if _, err := env.ledger.MyRating(env.ctx, bob, 30); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unrated err = %v, want not found", err)
	}
	if _, err := env.ledger.MyRating(env.ctx, alice, 31); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing movie err = %v, want not found", err)
	}
	if _, err := env.ledger.MyRating(env.ctx, authz.Actor{}, 30); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("anonymous err = %v, want permission", err)
	}
}

func TestLikeCounter(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 20)
	author, a, b := env.user(t, "author"), env.user(t, "a"), env.user(t, "b")

	review, err := env.ledger.CreateReview(env.ctx, author, 20, "  Great film  ")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if review.LikeCount != 0 || review.Text != "Great film" {
		t.Fatalf("review = %+v", review)
	}

	steps := []struct {
		name string
		run  func() (LikeChange, error)
		want int64
	}{
		{"a likes", func() (LikeChange, error) { return env.ledger.Like(env.ctx, a, 20, review.ID) }, 1},
		{"b likes", func() (LikeChange, error) { return env.ledger.Like(env.ctx, b, 20, review.ID) }, 2},
		{"a unlikes", func() (LikeChange, error) { return env.ledger.Unlike(env.ctx, a, 20, review.ID) }, 1},
	}
	for _, s := range steps {
		change, err := s.run()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if change.LikeCount != s.want {
			t.Fatalf("%s: like_count = %d, want %d", s.name, change.LikeCount, s.want)
		}
	}

	if _, err := env.ledger.Like(env.ctx, b, 20, review.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate like err = %v, want conflict", err)
	}
	if _, err := env.ledger.Unlike(env.ctx, a, 20, review.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unlike without like err = %v, want not found", err)
	}
	if _, err := env.ledger.Like(env.ctx, a, 20, review.ID+50); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("like missing review err = %v, want not found", err)
	}
	if _, err := env.ledger.Like(env.ctx, a, 21, review.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("like under missing movie err = %v, want not found", err)
	}

	got, err := env.ledger.GetReview(env.ctx, 20, review.ID)
	if err != nil {
		t.Fatalf("get review: %v", err)
	}
	n, err := env.repo.Likes.Count(env.ctx, review.ID)
	if err != nil {
		t.Fatalf("count likes: %v", err)
	}
	if got.LikeCount != 1 || n != 1 {
		t.Fatalf("like_count = %d, rows = %d; want 1 and 1", got.LikeCount, n)
	}

	for _, tt := range []struct {
		name  string
		actor authz.Actor
		want  bool
	}{
		{"current liker", b, true},
		{"withdrawn liker", a, false},
		{"author", author, false},
		{"anonymous", authz.Actor{}, false},
	} {
		liked, err := env.ledger.LikedBy(env.ctx, tt.actor, review.ID)
		if err != nil || liked != tt.want {
			t.Fatalf("%s: liked = %v, %v; want %v", tt.name, liked, err, tt.want)
		}
	}

	if _, err := env.ledger.Unlike(env.ctx, authz.Actor{}, 20, review.ID); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("anonymous unlike err = %v, want permission", err)
	}
	if n, _ := env.repo.Likes.Count(env.ctx, review.ID); n != 1 {
		t.Fatalf("like rows after anonymous unlike = %d, want 1", n)
	}
}

func TestConcurrentLikes(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 30)
	author := env.user(t, "author")
	review, err := env.ledger.CreateReview(env.ctx, author, 30, "text")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	const workers = 10
	actors := make([]authz.Actor, workers)
	for i := range actors {
		actors[i] = env.user(t, fmt.Sprintf("fan%d", i))
	}

	var wg sync.WaitGroup
	for _, a := range actors {
		wg.Add(1)
		go func(a authz.Actor) {
			defer wg.Done()
			if _, err := env.ledger.Like(env.ctx, a, 30, review.ID); err != nil {
				t.Errorf("like %d: %v", a.UserID, err)
			}
		}(a)
	}
	wg.Wait()

	got, err := env.ledger.GetReview(env.ctx, 30, review.ID)
	if err != nil {
		t.Fatalf("get review: %v", err)
	}
	if got.LikeCount != workers {
		t.Fatalf("like_count = %d, want %d", got.LikeCount, workers)
	}
}

func TestUnlikeRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 31)
	author, a, b := env.user(t, "author"), env.user(t, "a"), env.user(t, "b")
	review, err := env.ledger.CreateReview(env.ctx, author, 31, "text")
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	for _, actor := range []authz.Actor{a, b} {
		if _, err := env.ledger.Like(env.ctx, actor, 31, review.ID); err != nil {
			t.Fatalf("like: %v", err)
		}
	}
	// Simulate a counter that fell behind the like rows.
	if _, err := env.repo.Reviews.AdjustLikeCount(env.ctx, review.ID, -2); err != nil {
		t.Fatalf("force drift: %v", err)
	}

	change, err := env.ledger.Unlike(env.ctx, a, 31, review.ID)
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if change.LikeCount != 1 {
		t.Fatalf("like_count = %d, want 1 after repair", change.LikeCount)
	}
	if got := testutil.ToFloat64(env.metrics.LikeCountRepairs); got != 1 {
		t.Fatalf("repairs = %v, want 1", got)
	}

	if _, err := env.repo.Reviews.AdjustLikeCount(env.ctx, review.ID, 4); err != nil {
		t.Fatalf("force drift: %v", err)
	}
	n, err := env.ledger.ReconcileLikeCount(env.ctx, review.ID)
	if err != nil || n != 1 {
		t.Fatalf("reconcile = %d, %v; want 1", n, err)
	}
}

func TestReviewLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.movie(t, 40)
	author, other := env.user(t, "author"), env.user(t, "other")
	admin := env.admin(t, "root")

	review, err := env.ledger.CreateReview(env.ctx, author, 40, "first take")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.ledger.CreateReview(env.ctx, author, 40, "second take"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second review err = %v, want conflict", err)
	}
	if _, err := env.ledger.CreateReview(env.ctx, other, 40, "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank review err = %v, want validation", err)
	}
	if _, err := env.ledger.CreateReview(env.ctx, other, 40, strings.Repeat("x", MaxReviewLength+1)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("long review err = %v, want validation", err)
	}
	if _, err := env.ledger.CreateReview(env.ctx, other, 41, "text"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("review of missing movie err = %v, want not found", err)
	}

	if _, err := env.ledger.UpdateReview(env.ctx, other, 40, review.ID, "hijack"); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("update by other err = %v, want permission", err)
	}
	updated, err := env.ledger.UpdateReview(env.ctx, author, 40, review.ID, "revised")
	if err != nil || updated.Text != "revised" {
		t.Fatalf("update = %+v, %v", updated, err)
	}

	if err := env.ledger.DeleteReview(env.ctx, other, 40, review.ID); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("delete by other err = %v, want permission", err)
	}
	if err := env.ledger.DeleteReview(env.ctx, admin, 40, review.ID); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
	reviews, err := env.ledger.ListReviews(env.ctx, 40)
	if err != nil || len(reviews) != 0 {
		t.Fatalf("reviews = %v, %v; want none", reviews, err)
	}
}

func TestWatchHistory(t *testing.T) {
	env := newTestEnv(t)
	first := env.movie(t, 50)
	env.movie(t, 51)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")

	event, err := env.ledger.RecordWatch(env.ctx, alice, 50)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if event.TMDBID != 50 || event.Username != "alice" || event.WatchedAt.IsZero() {
		t.Fatalf("event = %+v", event)
	}
	if _, err := env.ledger.RecordWatch(env.ctx, alice, 50); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("repeat watch err = %v, want conflict", err)
	}
	if _, err := env.ledger.RecordWatch(env.ctx, alice, 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("watch missing movie err = %v, want not found", err)
	}
	if _, err := env.ledger.RecordWatch(env.ctx, alice, 51); err != nil {
		t.Fatalf("record second: %v", err)
	}
	if _, err := env.ledger.RecordWatch(env.ctx, bob, 50); err != nil {
		t.Fatalf("record bob: %v", err)
	}

	history, err := env.ledger.WatchHistory(env.ctx, alice)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].TMDBID != 51 {
		t.Fatalf("history = %+v, want newest first", history)
	}
	n, err := env.ledger.WatchCount(env.ctx, first.ID)
	if err != nil || n != 2 {
		t.Fatalf("watch count = %d, %v; want 2", n, err)
	}
}
