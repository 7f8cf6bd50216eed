package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "cohort:room:"

type opKind int

const (
	opJoined opKind = iota
	opLeft
	opEvicted
)

type update struct {
	kind   opKind
	key    domain.RoomKey
	member domain.Participant
}

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	QueueSize int
}

// Redis applies membership updates asynchronously. Updates are dropped when
// the queue is full, so a slow or absent Redis never stalls dispatch.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	queue  chan update
	log    *slog.Logger
}

func NewRedis(opts RedisOptions, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl:   opts.TTL,
		queue: make(chan update, opts.QueueSize),
		log:   log.With(slog.String("component", "presence")),
	}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func (r *Redis) Joined(key domain.RoomKey, member domain.Participant) {
	r.enqueue(update{kind: opJoined, key: key, member: member})
}

func (r *Redis) Left(key domain.RoomKey, memberID string) {
	r.enqueue(update{kind: opLeft, key: key, member: domain.Participant{ID: memberID}})
}

func (r *Redis) Evicted(key domain.RoomKey) {
	r.enqueue(update{kind: opEvicted, key: key})
}

func (r *Redis) enqueue(u update) {
	select {
	case r.queue <- u:
	default:
		r.log.Debug("dropping presence update", slog.String("room", u.key.String()))
	}
}

// Run applies queued updates until ctx is done.
func (r *Redis) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-r.queue:
			if err := r.apply(ctx, u); err != nil {
				r.log.Warn("presence update failed",
					slog.String("room", u.key.String()),
					sl.Err(err),
				)
			}
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) apply(ctx context.Context, u update) error {
	members := membersKey(u.key)
	profiles := profilesKey(u.key)

	switch u.kind {
	case opJoined:
		pipe := r.client.TxPipeline()
		pipe.SAdd(ctx, members, u.member.ID)
		pipe.HSet(ctx, profiles, u.member.ID, u.member.Name)
		pipe.Expire(ctx, members, r.ttl)
		pipe.Expire(ctx, profiles, r.ttl)
		_, err := pipe.Exec(ctx)
		return err
	case opLeft:
		pipe := r.client.TxPipeline()
		pipe.SRem(ctx, members, u.member.ID)
		pipe.HDel(ctx, profiles, u.member.ID)
		_, err := pipe.Exec(ctx)
		return err
	case opEvicted:
		return r.client.Del(ctx, members, profiles).Err()
	}
	return nil
}

func membersKey(key domain.RoomKey) string {
	return keyPrefix + string(key.Kind) + ":" + key.ID + ":members"
}

func profilesKey(key domain.RoomKey) string {
	return keyPrefix + string(key.Kind) + ":" + key.ID + ":profiles"
}
