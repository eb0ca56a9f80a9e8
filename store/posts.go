package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"blogapp/models"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	postsCacheKey = "posts"
	// postsGenKey is bumped after every committed write. A read only fills
	// the cache if the generation is unchanged since it started.
	postsGenKey = "posts:gen"
	cacheTTL    = 7 * 24 * time.Hour
)

var errStaleFill = errors.New("post cache generation moved")

// PostStore persists posts in PostgreSQL and caches reads in Redis.
// A nil cache disables caching.
type PostStore struct {
	db    *sql.DB
	cache *redis.Client
	loc   *time.Location
	log   *logrus.Logger
	now   func() time.Time
}

func NewPostStore(db *sql.DB, cache *redis.Client, loc *time.Location, log *logrus.Logger) *PostStore {
	return &PostStore{
		db:    db,
		cache: cache,
		loc:   loc,
		log:   log,
		now:   time.Now,
	}
}

// Create inserts a post stamped with the current time and returns its id.
func (s *PostStore) Create(ctx context.Context, title, body string) (int64, error) {
	createdAt := s.now().In(s.loc)

	var id int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO posts (title, body, created_at) VALUES ($1, $2, $3) RETURNING id`,
			title, body, createdAt).Scan(&id)
	})
	if err != nil {
		return 0, errors.Wrap(err, "insert post")
	}

	s.invalidate(ctx)
	return id, nil
}

// List returns every post in insertion order.
func (s *PostStore) List(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	gen, cacheable := s.generation(ctx)
	if cacheable && s.fromCache(ctx, postsCacheKey, &posts) {
		return s.localize(posts), nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, title, body, created_at FROM posts ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query posts")
	}
	defer rows.Close()

	posts = []models.Post{}
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.Title, &post.Body, &post.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan post")
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate posts")
	}

	if cacheable {
		s.toCache(ctx, gen, postsCacheKey, posts)
	}
	return s.localize(posts), nil
}

// Get returns the post with the given id or ErrNotFound.
func (s *PostStore) Get(ctx context.Context, id int64) (models.Post, error) {
	var post models.Post
	gen, cacheable := s.generation(ctx)
	if cacheable && s.fromCache(ctx, postKey(id), &post) {
		post.CreatedAt = post.CreatedAt.In(s.loc)
		return post, nil
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, body, created_at FROM posts WHERE id = $1`, id).
		Scan(&post.ID, &post.Title, &post.Body, &post.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, errors.Wrapf(ErrNotFound, "post %d", id)
		}
		return models.Post{}, errors.Wrapf(err, "query post %d", id)
	}

	if cacheable {
		s.toCache(ctx, gen, postKey(id), post)
	}
	post.CreatedAt = post.CreatedAt.In(s.loc)
	return post, nil
}

// Update replaces the title and body of a post. created_at is left as is.
func (s *PostStore) Update(ctx context.Context, id int64, title, body string) (models.Post, error) {
	var post models.Post
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE posts SET title = $1, body = $2 WHERE id = $3 RETURNING id, title, body, created_at`,
			title, body, id).Scan(&post.ID, &post.Title, &post.Body, &post.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(ErrNotFound, "post %d", id)
		}
		return err
	})
	if err != nil {
		return models.Post{}, errors.Wrapf(err, "update post %d", id)
	}

	s.invalidate(ctx, id)
	post.CreatedAt = post.CreatedAt.In(s.loc)
	return post, nil
}

// Delete removes a post or returns ErrNotFound.
func (s *PostStore) Delete(ctx context.Context, id int64) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Wrapf(ErrNotFound, "post %d", id)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete post %d", id)
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *PostStore) localize(posts []models.Post) []models.Post {
	for i := range posts {
		posts[i].CreatedAt = posts[i].CreatedAt.In(s.loc)
	}
	return posts
}

func (s *PostStore) fromCache(ctx context.Context, key string, dst interface{}) bool {
	if s.cache == nil {
		return false
	}

	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.WithError(err).WithField("key", key).Warn("post cache read failed")
		}
		return false
	}

	if err := json.Unmarshal(data, dst); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return false
	}
	return true
}

// generation returns the current cache generation. ok is false when the
// cache is disabled or unreachable, in which case the read bypasses it.
func (s *PostStore) generation(ctx context.Context) (gen int64, ok bool) {
	if s.cache == nil {
		return 0, false
	}

	gen, err := s.cache.Get(ctx, postsGenKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.WithError(err).Warn("post cache generation read failed")
		return 0, false
	}
	return gen, true
}

// toCache stores value under key unless a write has bumped the generation
// since gen was read.
func (s *PostStore) toCache(ctx context.Context, gen int64, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	err = s.cache.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, postsGenKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, cacheTTL)
			return nil
		})
		return err
	}, postsGenKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		s.log.WithField("key", key).Debug("skipped stale post cache fill")
	default:
		s.log.WithError(err).WithField("key", key).Warn("post cache write failed")
	}
}

// invalidate bumps the generation and drops the affected entries in one
// transaction. It must run after the database commit.
func (s *PostStore) invalidate(ctx context.Context, ids ...int64) {
	if s.cache == nil {
		return
	}

	keys := []string{postsCacheKey}
	for _, id := range ids {
		keys = append(keys, postKey(id))
	}
	_, err := s.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, postsGenKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("keys", keys).Error("post cache invalidation failed")
	}
}

func postKey(id int64) string {
	return "post:" + strconv.FormatInt(id, 10)
}
