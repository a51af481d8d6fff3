package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wenlng/go-captcha/v2/rotate"
)

const captchaKeyPrefix = "captcha_rotate:"

// CaptchaService issues and checks the rotate challenge shown on registration
type CaptchaService interface {
	Generate(ctx context.Context) (*RotateChallenge, error)
	// Verify consumes the challenge whatever the outcome
	Verify(ctx context.Context, challengeID string, angle float64) bool
}

type RotateChallenge struct {
	ID          string `json:"challenge_id"`
	MasterImage string `json:"master_image"`
	ThumbImage  string `json:"thumb_image"`
}

// challengeStore keeps target angles for outstanding challenges
type challengeStore interface {
	put(ctx context.Context, id string, angle int, ttl time.Duration) error
	take(ctx context.Context, id string) (int, bool)
}

type captchaServiceImpl struct {
	rotator   rotate.Captcha
	store     challengeStore
	ttl       time.Duration
	tolerance int
}

// NewCaptchaService builds a rotate captcha; rc may be nil for a process-local store
func NewCaptchaService(rc *redis.Client, ttl time.Duration, tolerance, sizePx int) CaptchaService {
	if sizePx <= 0 {
		sizePx = 220
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}

	builder := rotate.NewBuilder(rotate.WithImageSquareSize(sizePx))
	builder.SetResources(rotate.WithImages(stripedBackgrounds(4, sizePx)))

	var store challengeStore = &localChallengeStore{entries: make(map[string]localChallenge)}
	if rc != nil {
		store = &redisChallengeStore{rc: rc}
	}

	return &captchaServiceImpl{
		rotator:   builder.Make(),
		store:     store,
		ttl:       ttl,
		tolerance: tolerance,
	}
}

func (s *captchaServiceImpl) Generate(ctx context.Context) (*RotateChallenge, error) {
	captData, err := s.rotator.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate captcha: %w", err)
	}

	block := captData.GetData()
	if block == nil {
		return nil, errors.New("captcha generator returned no block data")
	}

	master, err := captData.GetMasterImage().ToBase64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode captcha image: %w", err)
	}
	thumb, err := captData.GetThumbImage().ToBase64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode captcha thumb: %w", err)
	}

	id := uuid.NewString()
	if err := s.store.put(ctx, id, block.Angle, s.ttl); err != nil {
		return nil, err
	}

	return &RotateChallenge{ID: id, MasterImage: master, ThumbImage: thumb}, nil
}

func (s *captchaServiceImpl) Verify(ctx context.Context, challengeID string, angle float64) bool {
	if challengeID == "" {
		return false
	}
	target, ok := s.store.take(ctx, challengeID)
	if !ok {
		return false
	}
	return rotate.Validate(int(math.Round(angle)), target, s.tolerance)
}

type redisChallengeStore struct {
	rc *redis.Client
}

func (s *redisChallengeStore) put(ctx context.Context, id string, angle int, ttl time.Duration) error {
	if err := s.rc.Set(ctx, captchaKeyPrefix+id, angle, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store captcha: %w", err)
	}
	return nil
}

func (s *redisChallengeStore) take(ctx context.Context, id string) (int, bool) {
	raw, err := s.rc.GetDel(ctx, captchaKeyPrefix+id).Result()
	if err != nil {
		return 0, false
	}
	angle, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return angle, true
}

type localChallenge struct {
	angle     int
	expiresAt time.Time
}

type localChallengeStore struct {
	mu      sync.Mutex
	entries map[string]localChallenge
}

func (s *localChallengeStore) put(_ context.Context, id string, angle int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, v := range s.entries {
		if now.After(v.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[id] = localChallenge{angle: angle, expiresAt: now.Add(ttl)}
	return nil
}

func (s *localChallengeStore) take(_ context.Context, id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	delete(s.entries, id)
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.angle, true
}

// stripedBackgrounds renders diagonal-stripe images so rotation is visible
func stripedBackgrounds(n, size int) []image.Image {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	imgs := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		a := color.RGBA{R: uint8(60 + rng.Intn(120)), G: uint8(90 + rng.Intn(120)), B: uint8(120 + rng.Intn(120)), A: 255}
		b := color.RGBA{R: 255 - a.R/2, G: 255 - a.G/2, B: 255 - a.B/3, A: 255}
		width := 12 + rng.Intn(12)

		img := image.NewRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if ((x+2*y)/width)%2 == 0 {
					img.SetRGBA(x, y, a)
				} else {
					img.SetRGBA(x, y, b)
				}
			}
		}
		imgs = append(imgs, img)
	}
	return imgs
}
