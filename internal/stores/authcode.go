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
	authCodeRecordVersionV1 = 1
	authCodeMaxRetries      = 4
)

var (
	ErrCodeNotFound         = errors.New("authorization code not found")
	ErrCodeExpired          = errors.New("authorization code expired")
	ErrCodeUsed             = errors.New("authorization code already used")
	ErrCodeExists           = errors.New("authorization code already exists")
	ErrCodeRedisUnavailable = errors.New("authorization code redis unavailable")
)

// AuthCodeRecord is the persisted state of one authorization code. Times are
// unix milliseconds.
type AuthCodeRecord struct {
	UserID    string
	ExpiresAt int64
	CreatedAt int64
	Used      bool
}

// Expired reports whether the record is past its expiry at now.
func (r *AuthCodeRecord) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// AuthCodeStore keeps authorization codes in Redis, one key per code.
type AuthCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewAuthCodeStore(redisClient redis.UniversalClient, prefix string) *AuthCodeStore {
	if prefix == "" {
		prefix = "aac"
	}
	return &AuthCodeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *AuthCodeStore) key(code string) string {
	return s.prefix + ":" + code
}

// Save stores record under code with ttl. An existing code is never overwritten.
func (s *AuthCodeStore) Save(ctx context.Context, code string, record *AuthCodeRecord, ttl time.Duration) error {
	encoded, err := encodeAuthCodeRecord(record)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(code), encoded, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	if !ok {
		return ErrCodeExists
	}
	return nil
}

// Redeem marks code used and returns its record. The read, the checks and
// the write run in one WATCH/MULTI transaction, so among concurrent callers
// at most one observes Used=false.
func (s *AuthCodeStore) Redeem(ctx context.Context, code string) (*AuthCodeRecord, error) {
	key := s.key(code)

	for i := 0; i < authCodeMaxRetries; i++ {
		var redeemed *AuthCodeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeAuthCodeRecord(data)
			if err != nil {
				return err
			}
			if record.Used {
				return ErrCodeUsed
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
				return ErrCodeExpired
			}

			record.Used = true
			updated, err := encodeAuthCodeRecord(record)
			if err != nil {
				return err
			}

			// Keep the used marker until natural expiry so replays are reported as such.
			ttl := time.UnixMilli(record.ExpiresAt).Sub(now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			redeemed = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrCodeNotFound
			case errors.Is(err, ErrCodeUsed), errors.Is(err, ErrCodeExpired):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
			}
		}

		return redeemed, nil
	}

	// Every attempt lost the race, so another caller redeemed it.
	return nil, ErrCodeUsed
}

func encodeAuthCodeRecord(record *AuthCodeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(authCodeRecordVersionV1)
	if record.Used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("authorization code user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeAuthCodeRecord(data []byte) (*AuthCodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != authCodeRecordVersionV1 {
		return nil, errors.New("invalid authorization code record version")
	}

	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &AuthCodeRecord{Used: used == 1}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
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
