package links

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/sundayezeilo/shortly/codegen"
	"github.com/sundayezeilo/shortly/internal/errx"
)

const (
	MinCodeLength         = 3
	MaxCodeLength         = 64
	MaxURLLength          = 2048
	MaxNameLength         = 120
	MaxDescriptionLength  = 1000
	MinPasswordLength     = 4
	DefaultCodeMaxRetries = 3
	PublicListLimit       = 100
)

// CreateLinkRequest represents the parameters for creating a new link.
type CreateLinkRequest struct {
	DestinationURL      string
	CustomCode          string // optional: generated when empty
	OwnerID             string
	Name                string
	Description         string
	IsPrivate           bool
	IsPasswordProtected bool
	Password            string
}

// Access is the result of a password check.
type Access struct {
	Granted        bool
	DestinationURL string // set only when Granted
}

// Service defines link management operations.
type Service interface {
	Create(ctx context.Context, req CreateLinkRequest) (Link, error)
	Get(ctx context.Context, code string) (Link, error)
	VerifyPassword(ctx context.Context, code, password string) (Access, error)

	// Deactivate stops redirects for a link; Restore turns them back on.
	// Clicks on an inactive link report NotFound.
	Deactivate(ctx context.Context, code string) (Link, error)
	Restore(ctx context.Context, code string) (Link, error)
	TogglePrivacy(ctx context.Context, code string) (Link, error)

	// Password changes are restricted to the link's owner.
	SetPassword(ctx context.Context, code, userID, password string) (Link, error)
	ChangePassword(ctx context.Context, code, userID, current, next string) (Link, error)
	RemovePassword(ctx context.Context, code, userID string) (Link, error)

	ListByOwner(ctx context.Context, ownerID string) ([]Link, error)
	ListPublic(ctx context.Context) ([]Link, error)
}

type service struct {
	repo           Repository
	codeGenerator  codegen.Generator
	codeLength     int
	codeMaxRetries int
	hasher         PasswordHasher
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	CodeGenerator  codegen.Generator
	CodeLength     int
	CodeMaxRetries int // attempts when generating a unique code (default: 3)
	Hasher         PasswordHasher
}

// NewService creates a new service instance.
func NewService(repo Repository, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	gen := config.CodeGenerator
	if gen == nil {
		gen = codegen.NewBase62()
	}

	length := config.CodeLength
	if length < MinCodeLength || length > MaxCodeLength {
		length = codegen.DefaultLength
	}

	retries := config.CodeMaxRetries
	if retries <= 0 {
		retries = DefaultCodeMaxRetries
	}

	hasher := config.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}

	return &service{
		repo:           repo,
		codeGenerator:  gen,
		codeLength:     length,
		codeMaxRetries: retries,
		hasher:         hasher,
	}
}

// Create creates a new short link, hashing its password when protected.
func (s *service) Create(ctx context.Context, req CreateLinkRequest) (Link, error) {
	const op = "links.service.Create"

	if err := validateCreate(req); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	link := Link{
		DestinationURL:      req.DestinationURL,
		OwnerID:             strings.TrimSpace(req.OwnerID),
		Name:                strings.TrimSpace(req.Name),
		Description:         strings.TrimSpace(req.Description),
		IsPrivate:           req.IsPrivate,
		IsPasswordProtected: req.IsPasswordProtected,
		IsActive:            true,
	}

	if req.IsPasswordProtected {
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			return Link{}, errx.E(op, errx.Internal, err)
		}
		link.PasswordHash = hash
	}

	if req.CustomCode != "" {
		link.Code = req.CustomCode
		created, err := s.repo.CreateLink(ctx, link)
		if err != nil {
			return Link{}, errx.Wrap(op, err)
		}
		return created, nil
	}

	for range s.codeMaxRetries {
		code, err := s.codeGenerator.Generate(s.codeLength)
		if err != nil {
			return Link{}, errx.E(op, errx.Internal, err)
		}

		link.Code = code
		created, err := s.repo.CreateLink(ctx, link)
		if err == nil {
			return created, nil
		}
		if errx.KindOf(err) != errx.Conflict {
			return Link{}, errx.Wrap(op, err)
		}
	}

	return Link{}, errx.E(op, errx.Exhausted,
		errors.New("could not generate unique code after retries"))
}

func (s *service) Get(ctx context.Context, code string) (Link, error) {
	const op = "links.service.Get"

	if code == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("code cannot be empty"))
	}

	link, err := s.repo.GetLink(ctx, code)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	return link, nil
}

// VerifyPassword checks password against a link. Unprotected links are
// always granted.
func (s *service) VerifyPassword(ctx context.Context, code, password string) (Access, error) {
	const op = "links.service.VerifyPassword"

	if code == "" {
		return Access{}, errx.E(op, errx.Invalid, errors.New("code cannot be empty"))
	}

	link, err := s.repo.GetLink(ctx, code)
	if err != nil {
		return Access{}, errx.Wrap(op, err)
	}
	if !link.IsActive {
		return Access{}, errx.E(op, errx.NotFound, errors.New("link is not active"))
	}

	if !link.IsPasswordProtected || s.hasher.Matches(link.PasswordHash, password) {
		return Access{Granted: true, DestinationURL: link.DestinationURL}, nil
	}
	return Access{}, nil
}

func (s *service) Deactivate(ctx context.Context, code string) (Link, error) {
	return s.setActive(ctx, "links.service.Deactivate", code, false)
}

func (s *service) Restore(ctx context.Context, code string) (Link, error) {
	return s.setActive(ctx, "links.service.Restore", code, true)
}

func (s *service) setActive(ctx context.Context, op, code string, active bool) (Link, error) {
	if code == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("code cannot be empty"))
	}

	link, err := s.repo.SetActive(ctx, code, active)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	return link, nil
}

func (s *service) TogglePrivacy(ctx context.Context, code string) (Link, error) {
	const op = "links.service.TogglePrivacy"

	if code == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("code cannot be empty"))
	}

	link, err := s.repo.TogglePrivate(ctx, code)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	return link, nil
}

// SetPassword protects a link that has no password yet.
func (s *service) SetPassword(ctx context.Context, code, userID, password string) (Link, error) {
	const op = "links.service.SetPassword"

	if err := validatePassword(password); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}
	link, err := s.ownedLink(ctx, op, code, userID)
	if err != nil {
		return Link{}, err
	}
	if link.IsPasswordProtected {
		return Link{}, errx.E(op, errx.Conflict, errors.New("link is already password protected"))
	}

	return s.storePassword(ctx, op, code, password)
}

// ChangePassword replaces the password of a protected link once current
// matches.
func (s *service) ChangePassword(ctx context.Context, code, userID, current, next string) (Link, error) {
	const op = "links.service.ChangePassword"

	if current == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("current password is required"))
	}
	if err := validatePassword(next); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}
	link, err := s.ownedLink(ctx, op, code, userID)
	if err != nil {
		return Link{}, err
	}
	if !link.IsPasswordProtected {
		return Link{}, errx.E(op, errx.Invalid, errors.New("link is not password protected"))
	}
	if !s.hasher.Matches(link.PasswordHash, current) {
		return Link{}, errx.E(op, errx.Unauthorized, errors.New("incorrect current password"))
	}

	return s.storePassword(ctx, op, code, next)
}

func (s *service) RemovePassword(ctx context.Context, code, userID string) (Link, error) {
	const op = "links.service.RemovePassword"

	link, err := s.ownedLink(ctx, op, code, userID)
	if err != nil {
		return Link{}, err
	}
	if !link.IsPasswordProtected {
		return Link{}, errx.E(op, errx.Conflict, errors.New("link is not password protected"))
	}

	updated, err := s.repo.SetPassword(ctx, code, "")
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	return updated, nil
}

// ownedLink loads code and checks that userID owns it.
func (s *service) ownedLink(ctx context.Context, op, code, userID string) (Link, error) {
	if code == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("code cannot be empty"))
	}
	if strings.TrimSpace(userID) == "" {
		return Link{}, errx.E(op, errx.Invalid, errors.New("userId is required"))
	}

	link, err := s.repo.GetLink(ctx, code)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	if !link.OwnedBy(userID) {
		return Link{}, errx.E(op, errx.Forbidden, errors.New("only the link owner can change its password"))
	}
	return link, nil
}

func (s *service) storePassword(ctx context.Context, op, code, password string) (Link, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}

	updated, err := s.repo.SetPassword(ctx, code, hash)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	return updated, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID string) ([]Link, error) {
	const op = "links.service.ListByOwner"

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, errx.E(op, errx.Invalid, errors.New("user id cannot be empty"))
	}

	list, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	return list, nil
}

func (s *service) ListPublic(ctx context.Context) ([]Link, error) {
	const op = "links.service.ListPublic"

	list, err := s.repo.ListPublic(ctx, PublicListLimit)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	return list, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 4 characters long")
	}
	return nil
}

func validateCreate(req CreateLinkRequest) error {
	if err := validateURL(req.DestinationURL); err != nil {
		return err
	}
	if req.CustomCode != "" {
		if err := validateCode(req.CustomCode); err != nil {
			return err
		}
	}
	if req.IsPasswordProtected {
		if req.Password == "" {
			return errors.New("password is required for a protected link")
		}
		if err := validatePassword(req.Password); err != nil {
			return err
		}
	}
	if len(req.Name) > MaxNameLength {
		return errors.New("name too long (max 120 characters)")
	}
	if len(req.Description) > MaxDescriptionLength {
		return errors.New("description too long (max 1000 characters)")
	}
	return nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}
	if len(rawURL) > MaxURLLength {
		return errors.New("url too long (max 2048 characters)")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid url format")
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must include scheme (http or https)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errors.New("url scheme must be http or https")
	}
	if parsedURL.Host == "" {
		return errors.New("url must include host")
	}
	return nil
}

// ValidCodeFormat is the cheap check used at the HTTP boundary.
func ValidCodeFormat(code string) bool {
	return len(code) <= MaxCodeLength && codegen.Valid(code)
}

func validateCode(code string) error {
	if len(code) < MinCodeLength {
		return errors.New("code too short (minimum 3 characters)")
	}
	if len(code) > MaxCodeLength {
		return errors.New("code too long (maximum 64 characters)")
	}

	if strings.HasPrefix(code, "-") || strings.HasPrefix(code, "_") ||
		strings.HasSuffix(code, "-") || strings.HasSuffix(code, "_") {
		return errors.New("code cannot start or end with dash or underscore")
	}

	if !codegen.Valid(code) {
		return errors.New("code contains invalid characters (only alphanumeric, dash, and underscore allowed)")
	}
	return nil
}
