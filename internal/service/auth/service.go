// Package auth orchestrates signup and login: credential storage, audio
// persistence, transcription, password verification and phrase comparison.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarklins/voicegate/internal/audio"
	"github.com/mkarklins/voicegate/internal/crypto"
	"github.com/mkarklins/voicegate/internal/domain"
	"github.com/mkarklins/voicegate/internal/repository"
	"github.com/mkarklins/voicegate/internal/transcribe"
)

var (
	// ErrMissingField is returned when a required form field is empty.
	ErrMissingField = errors.New("auth: missing required field")
	// ErrMissingAudio is returned when no audio capture accompanies the request.
	ErrMissingAudio = errors.New("auth: missing audio capture")
	// ErrDuplicateEmail is returned when the email is already enrolled.
	ErrDuplicateEmail = errors.New("auth: email already registered")
	// ErrUserNotFound is returned when no user matches the email.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidPassword is returned when password verification fails. Rows
	// with an empty stored hash are permanently unauthenticatable and always
	// produce this error.
	ErrInvalidPassword = errors.New("auth: invalid password")
	// ErrTranscriptionFailed covers every transcription failure; callers do
	// not distinguish missing speech from engine errors.
	ErrTranscriptionFailed = errors.New("auth: transcription failed")
)

// VoiceMismatchError reports a similarity score below the acceptance
// threshold. The score is carried so callers can show feedback.
type VoiceMismatchError struct {
	Similarity float64
}

func (e *VoiceMismatchError) Error() string {
	return fmt.Sprintf("auth: voice similarity %.2f below threshold", e.Similarity)
}

// ScoreFunc computes a [0,1] closeness score for two transcripts.
type ScoreFunc func(a, b string) float64

// Service coordinates the two authentication flows.
type Service struct {
	users       repository.UserRepository
	audio       *audio.Store
	transcriber transcribe.Transcriber
	score       ScoreFunc
	threshold   float64
	logger      *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, store *audio.Store, transcriber transcribe.Transcriber, score ScoreFunc, threshold float64, logger *slog.Logger) *Service {
	return &Service{
		users:       users,
		audio:       store,
		transcriber: transcriber,
		score:       score,
		threshold:   threshold,
		logger:      logger,
	}
}

// SignupInput carries the enrollment form fields and audio capture. Audio is
// nil when the upload was absent.
type SignupInput struct {
	Name      string
	Email     string
	Password  string
	Audio     io.Reader
	AudioName string
}

// SignupResult is returned on successful enrollment.
type SignupResult struct {
	User          domain.PublicUser
	Transcription string
}

// LoginInput carries the login form fields and audio capture.
type LoginInput struct {
	Email     string
	Password  string
	Audio     io.Reader
	AudioName string
}

// LoginResult is returned on successful authentication. Similarity is
// rounded to two decimal places.
type LoginResult struct {
	User       domain.PublicUser
	Similarity float64
}

// Signup enrolls a new user: the capture is stored durably under an
// email-keyed name, transcribed, and persisted together with the bcrypt
// password hash. The stored file is removed on any failure after the write.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)
	if name == "" || email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, ErrMissingField
	}
	if in.Audio == nil {
		return nil, ErrMissingAudio
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup existing user: %w", err)
	}

	path, err := s.audio.SaveEnrollment(email, in.AudioName, in.Audio)
	if err != nil {
		return nil, fmt.Errorf("store enrollment audio: %w", err)
	}

	transcript, err := s.transcriber.Transcribe(ctx, path)
	if err != nil {
		s.removeCapture(path)
		s.logger.Warn("enrollment transcription failed", "email", email, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		s.removeCapture(path)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:            uuid.NewString(),
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		VoicePhrase:   transcript,
		AudioFilePath: path,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		s.removeCapture(path)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user enrolled", "user_id", user.ID)
	return &SignupResult{User: user.Public(), Transcription: transcript}, nil
}

// Login authenticates a user: the password must verify and the transcript of
// the supplied capture must score at or above the threshold against the
// enrolled phrase. The capture is scratch space and is deleted regardless of
// outcome.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || strings.TrimSpace(in.Password) == "" {
		return nil, ErrMissingField
	}
	if in.Audio == nil {
		return nil, ErrMissingAudio
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if len(user.PasswordHash) == 0 || crypto.ComparePassword(user.PasswordHash, in.Password) != nil {
		return nil, ErrInvalidPassword
	}

	tempPath, err := s.audio.SaveTemp(in.AudioName, in.Audio)
	if err != nil {
		return nil, fmt.Errorf("store login audio: %w", err)
	}
	defer s.removeCapture(tempPath)

	transcript, err := s.transcriber.Transcribe(ctx, tempPath)
	if err != nil {
		s.logger.Warn("login transcription failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	// Threshold applies to the raw score; rounding is only for display.
	similarity := s.score(user.VoicePhrase, transcript)
	if similarity < s.threshold {
		s.logger.Warn("voice mismatch", "user_id", user.ID, "similarity", similarity)
		return nil, &VoiceMismatchError{Similarity: round2(similarity)}
	}

	s.logger.Info("user logged in", "user_id", user.ID, "similarity", similarity)
	return &LoginResult{User: user.Public(), Similarity: round2(similarity)}, nil
}

func (s *Service) removeCapture(path string) {
	if err := s.audio.Remove(path); err != nil {
		s.logger.Warn("failed to remove capture", "path", path, "error", err)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
