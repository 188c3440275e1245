package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mkarklins/voicegate/internal/audio"
	"github.com/mkarklins/voicegate/internal/crypto"
	"github.com/mkarklins/voicegate/internal/domain"
	"github.com/mkarklins/voicegate/internal/repository"
	"github.com/mkarklins/voicegate/internal/similarity"
	"github.com/mkarklins/voicegate/internal/transcribe"
)

type stubUserRepo struct {
	byEmail   map[string]*domain.User
	createErr error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{byEmail: make(map[string]*domain.User)}
}

func (s *stubUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	copied := *user
	s.byEmail[user.Email] = &copied
	return nil
}

func (s *stubUserRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	user, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, repo repository.UserRepository, tr transcribe.Transcriber) (*Service, *audio.Store) {
	t.Helper()
	store, err := audio.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("audio store: %v", err)
	}
	return New(repo, store, tr, similarity.Score, 0.75, newLogger()), store
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func signupInput(audioBody string) SignupInput {
	in := SignupInput{Name: "Ann", Email: "a@x.com", Password: "p1", AudioName: "phrase.webm"}
	if audioBody != "" {
		in.Audio = strings.NewReader(audioBody)
	}
	return in
}

func loginInput(audioBody string) LoginInput {
	in := LoginInput{Email: "a@x.com", Password: "p1", AudioName: "phrase.webm"}
	if audioBody != "" {
		in.Audio = strings.NewReader(audioBody)
	}
	return in
}

func TestSignupStoresUserWithTranscript(t *testing.T) {
	repo := newStubUserRepo()
	svc, store := newService(t, repo, stubTranscriber{text: "open sesame"})

	res, err := svc.Signup(context.Background(), signupInput("audio-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transcription != "open sesame" {
		t.Fatalf("unexpected transcription: %q", res.Transcription)
	}
	if res.User.ID == "" || res.User.Name != "Ann" || res.User.Email != "a@x.com" {
		t.Fatalf("unexpected public user: %+v", res.User)
	}

	stored, err := repo.GetUserByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("user not retrievable: %v", err)
	}
	if stored.VoicePhrase != "open sesame" {
		t.Fatalf("unexpected stored phrase: %q", stored.VoicePhrase)
	}
	if len(stored.PasswordHash) == 0 || string(stored.PasswordHash) == "p1" {
		t.Fatalf("password must be stored hashed")
	}
	if _, err := os.Stat(stored.AudioFilePath); err != nil {
		t.Fatalf("enrollment audio missing: %v", err)
	}
	if countFiles(t, store.Dir()) != 1 {
		t.Fatalf("expected exactly one stored capture")
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newService(t, newStubUserRepo(), stubTranscriber{text: "x"})

	for _, in := range []SignupInput{
		{Email: "a@x.com", Password: "p1", Audio: strings.NewReader("a")},
		{Name: "Ann", Password: "p1", Audio: strings.NewReader("a")},
		{Name: "Ann", Email: "a@x.com", Password: "   ", Audio: strings.NewReader("a")},
	} {
		if _, err := svc.Signup(context.Background(), in); !errors.Is(err, ErrMissingField) {
			t.Fatalf("expected ErrMissingField for %+v, got %v", in, err)
		}
	}

	if _, err := svc.Signup(context.Background(), signupInput("")); !errors.Is(err, ErrMissingAudio) {
		t.Fatalf("expected ErrMissingAudio, got %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newService(t, repo, stubTranscriber{text: "open sesame"})

	if _, err := svc.Signup(context.Background(), signupInput("a")); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	if _, err := svc.Signup(context.Background(), signupInput("b")); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSignupDuplicateRaceSurfacedByStore(t *testing.T) {
	repo := newStubUserRepo()
	repo.createErr = repository.ErrDuplicateEmail
	svc, store := newService(t, repo, stubTranscriber{text: "open sesame"})

	if _, err := svc.Signup(context.Background(), signupInput("a")); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if countFiles(t, store.Dir()) != 0 {
		t.Fatalf("capture must be removed when the insert is rejected")
	}
}

func TestSignupTranscriptionFailureRemovesAudio(t *testing.T) {
	svc, store := newService(t, newStubUserRepo(), stubTranscriber{err: transcribe.ErrNoSpeech})

	_, err := svc.Signup(context.Background(), signupInput("a"))
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if countFiles(t, store.Dir()) != 0 {
		t.Fatalf("capture must be removed after failed transcription")
	}
}

func enroll(t *testing.T, repo *stubUserRepo, phrase string) {
	t.Helper()
	hash, err := crypto.HashPassword("p1")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	repo.byEmail["a@x.com"] = &domain.User{
		ID:           "user-1",
		Name:         "Ann",
		Email:        "a@x.com",
		PasswordHash: hash,
		VoicePhrase:  phrase,
	}
}

func TestLoginSucceedsOnMatchingPhrase(t *testing.T) {
	repo := newStubUserRepo()
	enroll(t, repo, "open sesame")
	svc, store := newService(t, repo, stubTranscriber{text: "open sesame"})

	res, err := svc.Login(context.Background(), loginInput("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Similarity != 1.0 {
		t.Fatalf("expected similarity 1.0, got %v", res.Similarity)
	}
	if res.User.ID != "user-1" || res.User.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if countFiles(t, store.Dir()) != 0 {
		t.Fatalf("temp capture must not outlive the request")
	}
}

func TestLoginVoiceMismatchReportsScore(t *testing.T) {
	repo := newStubUserRepo()
	enroll(t, repo, "my voice is my passport")
	svc, store := newService(t, repo, stubTranscriber{text: "the weather is nice today"})

	_, err := svc.Login(context.Background(), loginInput("a"))
	var mismatch *VoiceMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected VoiceMismatchError, got %v", err)
	}
	if mismatch.Similarity != 0.25 {
		t.Fatalf("unexpected similarity: %v", mismatch.Similarity)
	}
	if countFiles(t, store.Dir()) != 0 {
		t.Fatalf("temp capture must be removed after mismatch")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newStubUserRepo()
	enroll(t, repo, "open sesame")
	svc, _ := newService(t, repo, stubTranscriber{text: "open sesame"})

	in := loginInput("a")
	in.Password = "nope"
	if _, err := svc.Login(context.Background(), in); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoginLegacyEmptyHashNeverVerifies(t *testing.T) {
	repo := newStubUserRepo()
	repo.byEmail["a@x.com"] = &domain.User{
		ID:          "legacy-1",
		Email:       "a@x.com",
		VoicePhrase: "open sesame",
	}
	svc, _ := newService(t, repo, stubTranscriber{text: "open sesame"})

	in := loginInput("a")
	in.Password = ""
	if _, err := svc.Login(context.Background(), in); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField for empty password, got %v", err)
	}

	if _, err := svc.Login(context.Background(), loginInput("a")); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("legacy row must be rejected, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newService(t, newStubUserRepo(), stubTranscriber{text: "open sesame"})

	in := loginInput("a")
	in.Email = "missing@x.com"
	if _, err := svc.Login(context.Background(), in); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginTranscriptionFailureCleansUp(t *testing.T) {
	repo := newStubUserRepo()
	enroll(t, repo, "open sesame")
	svc, store := newService(t, repo, stubTranscriber{err: errors.New("engine down")})

	if _, err := svc.Login(context.Background(), loginInput("a")); !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	if countFiles(t, store.Dir()) != 0 {
		t.Fatalf("temp capture must be removed after failed transcription")
	}
}

func TestLoginValidation(t *testing.T) {
	svc, _ := newService(t, newStubUserRepo(), stubTranscriber{text: "x"})

	in := loginInput("a")
	in.Email = " "
	if _, err := svc.Login(context.Background(), in); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := svc.Login(context.Background(), loginInput("")); !errors.Is(err, ErrMissingAudio) {
		t.Fatalf("expected ErrMissingAudio, got %v", err)
	}
}
