package attendee

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
)

// BatchSize is the number of directory lookups in flight at once.
const BatchSize = 5

// Result is the outcome of validating one address.
type Result struct {
	Email        string `json:"email"`
	IsValid      bool   `json:"is_valid"`
	Exists       bool   `json:"exists"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	IsGoogleUser bool   `json:"is_google_user"`
}

// Directory checks that a well-formed address belongs to a real person.
type Directory interface {
	Lookup(ctx context.Context, email string, user model.User) (Result, error)
}

// Stats summarizes cache effectiveness and directory latency.
type Stats struct {
	Size                  int     `json:"size"`
	HitRate               float64 `json:"hit_rate"`
	TotalValidations      int64   `json:"total_validations"`
	AverageValidationTime float64 `json:"average_validation_time_ms"`
}

// Service validates addresses against the directory, remembering results
// for ttl.
type Service struct {
	directory Directory
	cache     *Cache[Result]
	ttl       time.Duration
	validate  *validator.Validate
	log       *logger.Logger

	mu          sync.Mutex
	validations int64
	elapsed     time.Duration
}

// NewService creates a validation service backed by directory and cache.
func NewService(directory Directory, cache *Cache[Result], ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		directory: directory,
		cache:     cache,
		ttl:       ttl,
		validate:  validator.New(),
		log:       log.Named("attendee"),
	}
}

// ValidFormat reports whether email is a syntactically valid address.
func (s *Service) ValidFormat(email string) bool {
	return s.validate.Var(email, "required,email") == nil
}

// ValidateEmail validates a single address. Malformed addresses are
// rejected without a directory lookup.
func (s *Service) ValidateEmail(ctx context.Context, email string, user model.User) (Result, error) {
	key := model.NormalizeEmail(email)
	if r, ok := s.cache.Get(key); ok {
		return r, nil
	}

	if !s.ValidFormat(key) {
		r := Result{Email: key}
		s.cache.Set(key, r, s.ttl)
		return r, nil
	}

	start := time.Now()
	r, err := s.directory.Lookup(ctx, key, user)
	s.record(time.Since(start))
	if err != nil {
		return Result{Email: key}, fmt.Errorf("lookup %s: %w", key, err)
	}

	r.Email = key
	r.IsValid = r.IsValid && r.Exists
	s.cache.Set(key, r, s.ttl)
	s.log.Debug("attendee validated", zap.String("email", key), zap.Bool("valid", r.IsValid))
	return r, nil
}

// ValidateBatch validates the distinct addresses in emails, BatchSize at a
// time. Results follow the order of first appearance. On error the results
// already gathered are returned with it.
func (s *Service) ValidateBatch(ctx context.Context, emails []string, user model.User) ([]Result, error) {
	unique := Dedupe(emails)
	results := make([]Result, len(unique))

	for start := 0; start < len(unique); start += BatchSize {
		end := min(start+BatchSize, len(unique))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				r, err := s.ValidateEmail(gctx, unique[i], user)
				results[i] = r
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return results[:end], err
		}
	}
	return results, nil
}

func (s *Service) record(d time.Duration) {
	s.mu.Lock()
	s.validations++
	s.elapsed += d
	s.mu.Unlock()
}

// GetStats returns cache and lookup statistics.
func (s *Service) GetStats() Stats {
	cs := s.cache.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Size:             cs.Size,
		HitRate:          cs.HitRate,
		TotalValidations: s.validations,
	}
	if s.validations > 0 {
		st.AverageValidationTime = float64(s.elapsed.Milliseconds()) / float64(s.validations)
	}
	return st
}

// Dedupe normalizes emails and drops blanks and repeats, keeping the first
// occurrence.
func Dedupe(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		e = model.NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// SplitName guesses a first and last name from the local part of an address.
func SplitName(email string) (string, string) {
	local, _, _ := strings.Cut(email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	if len(parts) == 0 {
		return "", ""
	}
	first := capitalize(parts[0])
	if len(parts) == 1 {
		return first, ""
	}
	return first, capitalize(parts[len(parts)-1])
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
