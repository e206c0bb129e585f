// Package redis stores the user directory, per-user credentials and the
// dispatch watermark in Redis.
//
// Key layout, all under a configurable prefix:
//
//	{prefix}:users                      set of user ids
//	{prefix}:user:{id}:locations        hash of point id -> JSON location
//	{prefix}:user:{id}:credential       JSON credential
//	{prefix}:watermark                  RFC 3339 timestamp
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/quake-notifier/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when removing an interest point that does not exist.
var ErrNotFound = errors.New("not found")

// Store implements dispatch.Directory, dispatch.CredentialStore and
// dispatch.WatermarkStore.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

// NewStore connects to redisURL (redis:// or rediss://) and pings the server.
func NewStore(ctx context.Context, redisURL, prefix string) (*Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = time.Second

	if opts.TLSConfig == nil && strings.HasPrefix(redisURL, "rediss://") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Store{rdb: rdb, prefix: prefix}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// --- Directory ---

// ListUsers returns all registered user ids, sorted.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	users, err := s.rdb.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	slices.Sort(users)
	return users, nil
}

// ListInterestPoints returns the user's interest points ordered by id.
func (s *Store) ListInterestPoints(ctx context.Context, userID string) ([]domain.InterestPoint, error) {
	fields, err := s.rdb.HGetAll(ctx, s.locationsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list interest points for %s: %w", userID, err)
	}
	points := make([]domain.InterestPoint, 0, len(fields))
	for id, raw := range fields {
		p, err := decodeLocation(userID, id, raw)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	slices.SortFunc(points, func(a, b domain.InterestPoint) int {
		return strings.Compare(a.ID, b.ID)
	})
	return points, nil
}

// AddUser registers a user id.
func (s *Store) AddUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if err := s.rdb.SAdd(ctx, s.usersKey(), userID).Err(); err != nil {
		return fmt.Errorf("add user %s: %w", userID, err)
	}
	return nil
}

// AddInterestPoint stores a new interest point for the user, registering
// the user if needed, and returns it with its generated id.
func (s *Store) AddInterestPoint(ctx context.Context, userID, description string, lon, lat float64) (domain.InterestPoint, error) {
	if userID == "" {
		return domain.InterestPoint{}, errors.New("user id is required")
	}
	if err := validateCoordinates(lon, lat); err != nil {
		return domain.InterestPoint{}, err
	}
	p := domain.InterestPoint{
		ID:          uuid.NewString(),
		OwnerUserID: userID,
		Description: description,
		Lon:         lon,
		Lat:         lat,
	}
	raw, err := encodeLocation(p)
	if err != nil {
		return domain.InterestPoint{}, err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, s.usersKey(), userID)
		pipe.HSet(ctx, s.locationsKey(userID), p.ID, raw)
		return nil
	})
	if err != nil {
		return domain.InterestPoint{}, fmt.Errorf("add interest point for %s: %w", userID, err)
	}
	return p, nil
}

// RemoveInterestPoint deletes one interest point. It returns ErrNotFound
// when the user has no point with that id.
func (s *Store) RemoveInterestPoint(ctx context.Context, userID, pointID string) error {
	n, err := s.rdb.HDel(ctx, s.locationsKey(userID), pointID).Result()
	if err != nil {
		return fmt.Errorf("remove interest point %s: %w", pointID, err)
	}
	if n == 0 {
		return fmt.Errorf("interest point %s for user %s: %w", pointID, userID, ErrNotFound)
	}
	return nil
}

// --- CredentialStore ---

// GetCredential returns domain.ErrCredentialMissing when none is stored.
func (s *Store) GetCredential(ctx context.Context, userID string) (domain.Credential, error) {
	raw, err := s.rdb.Get(ctx, s.credentialKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Credential{}, fmt.Errorf("user %s: %w", userID, domain.ErrCredentialMissing)
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get credential for %s: %w", userID, err)
	}
	var cred domain.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return domain.Credential{}, fmt.Errorf("decode credential for %s: %w", userID, err)
	}
	return cred, nil
}

// PutCredential stores the user's credential and registers the user.
func (s *Store) PutCredential(ctx context.Context, userID string, cred domain.Credential) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	if cred.AccessToken == "" {
		return errors.New("access token is required")
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, s.usersKey(), userID)
		pipe.Set(ctx, s.credentialKey(userID), raw, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put credential for %s: %w", userID, err)
	}
	return nil
}

// --- WatermarkStore ---

// Load returns the stored watermark. ok is false when none was ever stored.
func (s *Store) Load(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, s.watermarkKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("load watermark: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %q: %w", raw, err)
	}
	return t.UTC(), true, nil
}

// Store persists the watermark.
func (s *Store) Store(ctx context.Context, t time.Time) error {
	if err := s.rdb.Set(ctx, s.watermarkKey(), t.UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("store watermark: %w", err)
	}
	return nil
}

// --- keys and encoding ---

func (s *Store) usersKey() string     { return s.prefix + ":users" }
func (s *Store) watermarkKey() string { return s.prefix + ":watermark" }

func (s *Store) locationsKey(userID string) string {
	return s.prefix + ":user:" + userID + ":locations"
}

func (s *Store) credentialKey(userID string) string {
	return s.prefix + ":user:" + userID + ":credential"
}

type storedLocation struct {
	Description string  `json:"description"`
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
}

func encodeLocation(p domain.InterestPoint) (string, error) {
	raw, err := json.Marshal(storedLocation{Description: p.Description, Lon: p.Lon, Lat: p.Lat})
	if err != nil {
		return "", fmt.Errorf("encode interest point: %w", err)
	}
	return string(raw), nil
}

func decodeLocation(userID, id, raw string) (domain.InterestPoint, error) {
	var loc storedLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return domain.InterestPoint{}, fmt.Errorf("decode interest point %s for %s: %w", id, userID, err)
	}
	return domain.InterestPoint{
		ID:          id,
		OwnerUserID: userID,
		Description: loc.Description,
		Lon:         loc.Lon,
		Lat:         loc.Lat,
	}, nil
}

func validateCoordinates(lon, lat float64) error {
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	return nil
}
