package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginChallengeRecordVersionV1 = 1
	loginChallengeMaxRetries      = 4
)

var (
	ErrChallengeNotFound         = errors.New("login challenge not found")
	ErrChallengeExpired          = errors.New("login challenge expired")
	ErrChallengeExists           = errors.New("login challenge already exists")
	ErrChallengeRedisUnavailable = errors.New("login challenge redis unavailable")
)

// LoginChallengeRecord binds a pending 2FA login to the user whose password
// was checked. ExpiresAt is unix milliseconds.
type LoginChallengeRecord struct {
	UserID    string
	ExpiresAt int64
	Attempts  uint16
}

func (r *LoginChallengeRecord) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// LoginChallengeStore keeps pending 2FA logins in Redis, one key per
// challenge id.
type LoginChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewLoginChallengeStore(redisClient redis.UniversalClient, prefix string) *LoginChallengeStore {
	if prefix == "" {
		prefix = "amc"
	}
	return &LoginChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *LoginChallengeStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *LoginChallengeStore) Save(ctx context.Context, id string, record *LoginChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeLoginChallenge(record)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(id), encoded, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	if !ok {
		return ErrChallengeExists
	}
	return nil
}

func (s *LoginChallengeStore) Get(ctx context.Context, id string) (*LoginChallengeRecord, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}

	record, err := decodeLoginChallenge(data)
	if err != nil {
		return nil, err
	}
	if record.Expired(s.now()) {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Consume deletes the challenge. Only the caller whose DEL removed the key
// sees true.
func (s *LoginChallengeStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return n > 0, nil
}

// RecordFailure counts one wrong code. When the count reaches maxAttempts
// the challenge is deleted and exceeded is true.
func (s *LoginChallengeStore) RecordFailure(ctx context.Context, id string, maxAttempts int) (exceeded bool, err error) {
	key := s.key(id)

	for i := 0; i < loginChallengeMaxRetries; i++ {
		exceeded = false

		err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeLoginChallenge(data)
			if err != nil {
				return err
			}

			now := s.now()
			if record.Expired(now) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeExpired
			}

			record.Attempts++
			if int(record.Attempts) >= maxAttempts {
				exceeded = true
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			updated, err := encodeLoginChallenge(record)
			if err != nil {
				return err
			}
			ttl := time.UnixMilli(record.ExpiresAt).Sub(now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return false, ErrChallengeNotFound
			case errors.Is(err, ErrChallengeExpired):
				return false, err
			default:
				return false, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
			}
		}
		return exceeded, nil
	}

	// Every attempt lost to a concurrent writer, which either consumed the
	// challenge or recorded its own failure.
	return false, ErrChallengeNotFound
}

func encodeLoginChallenge(record *LoginChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(loginChallengeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("login challenge user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeLoginChallenge(data []byte) (*LoginChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != loginChallengeRecordVersionV1 {
		return nil, errors.New("invalid login challenge record version")
	}

	record := &LoginChallengeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	return record, nil
}
