// Package credential is the local identity provider: it stores e-mail and
// password identities, enforces failed-login lockout and issues e-mail
// verification tokens.
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"teamdesk/internal/apperr"
	"teamdesk/internal/domain"
	"teamdesk/internal/logging"
	"teamdesk/internal/mailer"
	"teamdesk/internal/validation"
)

const verifyPurpose = "verify_email"

type Hasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type Config struct {
	Secret            []byte
	VerificationTTL   time.Duration
	PasswordMinLength int
	MaxFailedLogins   int
	Lockout           time.Duration
	VerifyURL         string
	From              string
}

type Service struct {
	DB     *sql.DB
	Mailer mailer.Mailer
	Hasher Hasher
	Config Config
	Now    func() time.Time
	Logger logging.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) log() logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger
}

func (s *Service) hasher() Hasher {
	if s.Hasher == nil {
		return BcryptHasher{}
	}
	return s.Hasher
}

type registration struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type identityRow struct {
	domain.Identity
	PasswordHash   string
	FailedAttempts int
	LockedUntil    sql.NullString
}

const identityColumns = `id,email,COALESCE(display_name,''),password_hash,verified,failed_attempts,locked_until`

func scanIdentity(row *sql.Row) (identityRow, error) {
	var r identityRow
	var verified int
	err := row.Scan(&r.ID, &r.Email, &r.DisplayName, &r.PasswordHash, &verified, &r.FailedAttempts, &r.LockedUntil)
	r.Verified = verified != 0
	return r, err
}

func providerErr(op string, err error) error {
	return apperr.Wrap(apperr.KindAuthProvider, op, err)
}

// Register creates an unverified identity.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	if err := validation.Check("register", registration{Email: email, Password: password}); err != nil {
		return domain.Identity{}, err
	}
	if minLen := s.Config.PasswordMinLength; len(password) < minLen {
		return domain.Identity{}, apperr.Validation("register", fmt.Sprintf("password must be at least %d characters", minLen))
	}
	var existing string
	err := s.DB.QueryRowContext(ctx, `SELECT id FROM identities WHERE email=?`, email).Scan(&existing)
	if err == nil {
		return domain.Identity{}, apperr.New(apperr.KindCredentialConflict, "register", "email already registered")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, providerErr("register", err)
	}
	hash, err := s.hasher().Hash(password)
	if err != nil {
		return domain.Identity{}, providerErr("register", err)
	}
	id := domain.Identity{ID: uuid.NewString(), Email: email, DisplayName: strings.TrimSpace(displayName)}
	ts := domain.FormatTime(s.now())
	_, err = s.DB.ExecContext(ctx, `INSERT INTO identities(id,email,display_name,password_hash,verified,failed_attempts,created_at,updated_at) VALUES (?,?,?,?,0,0,?,?)`,
		id.ID, id.Email, nullable(id.DisplayName), hash, ts, ts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.Identity{}, apperr.New(apperr.KindCredentialConflict, "register", "email already registered")
		}
		return domain.Identity{}, providerErr("register", err)
	}
	s.log().Infow("identity registered", "identity_id", id.ID)
	return id, nil
}

// Authenticate checks a password and applies the failed-login lockout.
func (s *Service) Authenticate(ctx context.Context, email, password string) (domain.Identity, error) {
	const op = "sign in"
	row, err := scanIdentity(s.DB.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=?`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, apperr.New(apperr.KindInvalidCredentials, op, "")
	}
	if err != nil {
		return domain.Identity{}, providerErr(op, err)
	}
	now := s.now()
	if row.LockedUntil.Valid {
		until, perr := domain.ParseTime(row.LockedUntil.String)
		if perr == nil && now.Before(until) {
			return domain.Identity{}, apperr.New(apperr.KindTooManyAttempts, op, "")
		}
	}
	if !s.hasher().Verify(row.PasswordHash, password) {
		return domain.Identity{}, s.recordFailure(ctx, row, now)
	}
	if row.FailedAttempts > 0 || row.LockedUntil.Valid {
		if _, err := s.DB.ExecContext(ctx, `UPDATE identities SET failed_attempts=0, locked_until=NULL, updated_at=? WHERE id=?`,
			domain.FormatTime(now), row.ID); err != nil {
			return domain.Identity{}, providerErr(op, err)
		}
	}
	return row.Identity, nil
}

func (s *Service) recordFailure(ctx context.Context, row identityRow, now time.Time) error {
	const op = "sign in"
	attempts := row.FailedAttempts + 1
	limit := s.Config.MaxFailedLogins
	if limit > 0 && attempts >= limit {
		until := domain.FormatTime(now.Add(s.Config.Lockout))
		if _, err := s.DB.ExecContext(ctx, `UPDATE identities SET failed_attempts=0, locked_until=?, updated_at=? WHERE id=?`,
			until, domain.FormatTime(now), row.ID); err != nil {
			return providerErr(op, err)
		}
		s.log().Warnw("identity locked after failed logins", "identity_id", row.ID, "until", until)
		return apperr.New(apperr.KindTooManyAttempts, op, "")
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE identities SET failed_attempts=?, updated_at=? WHERE id=?`,
		attempts, domain.FormatTime(now), row.ID); err != nil {
		return providerErr(op, err)
	}
	return apperr.New(apperr.KindInvalidCredentials, op, "")
}

func (s *Service) Lookup(ctx context.Context, id string) (domain.Identity, error) {
	row, err := scanIdentity(s.DB.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, apperr.NotFound("lookup identity", "identity not found")
	}
	if err != nil {
		return domain.Identity{}, providerErr("lookup identity", err)
	}
	return row.Identity, nil
}

func (s *Service) LookupEmail(ctx context.Context, email string) (domain.Identity, error) {
	row, err := scanIdentity(s.DB.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE email=?`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, apperr.NotFound("lookup identity", "identity not found")
	}
	if err != nil {
		return domain.Identity{}, providerErr("lookup identity", err)
	}
	return row.Identity, nil
}

// Remove deletes an identity and its outstanding verification tokens.
func (s *Service) Remove(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM identities WHERE id=?`, id)
	if err != nil {
		return providerErr("remove identity", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("remove identity", "identity not found")
	}
	return nil
}

// MarkVerified flags an identity as verified without a token.
func (s *Service) MarkVerified(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE identities SET verified=1, updated_at=? WHERE id=?`, domain.FormatTime(s.now()), id)
	if err != nil {
		return providerErr("verify identity", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("verify identity", "identity not found")
	}
	return nil
}

type verifyClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// IssueVerification mails a single-use verification link to identity.
func (s *Service) IssueVerification(ctx context.Context, identity domain.Identity) error {
	const op = "send verification"
	if len(s.Config.Secret) == 0 {
		return providerErr(op, errors.New("verification secret not configured"))
	}
	now := s.now()
	claims := verifyClaims{
		Purpose: verifyPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Config.VerificationTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Config.Secret)
	if err != nil {
		return providerErr(op, err)
	}
	if _, err := s.DB.ExecContext(ctx, `INSERT INTO verification_tokens(jti,identity_id,issued_at,expires_at) VALUES (?,?,?,?)`,
		claims.ID, identity.ID, domain.FormatTime(now), domain.FormatTime(claims.ExpiresAt.Time)); err != nil {
		return providerErr(op, err)
	}
	msg := mailer.Message{
		From:    s.Config.From,
		To:      identity.Email,
		Subject: "Verify your email address",
		Body:    "Open this link to verify your email address: " + s.verifyLink(token),
		Token:   token,
	}
	if s.Mailer == nil {
		return apperr.Wrap(apperr.KindDelivery, op, errors.New("no mailer configured"))
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		return apperr.Wrap(apperr.KindDelivery, op, err)
	}
	return nil
}

func (s *Service) verifyLink(token string) string {
	base := s.Config.VerifyURL
	if base == "" {
		return token
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

// Verify consumes a verification token and marks its identity verified.
func (s *Service) Verify(ctx context.Context, token string) (domain.Identity, error) {
	const op = "verify email"
	invalid := apperr.Validation(op, "verification link is invalid or expired")
	var claims verifyClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.Config.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || claims.Purpose != verifyPurpose || claims.Subject == "" || claims.ID == "" {
		return domain.Identity{}, invalid
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Identity{}, providerErr(op, err)
	}
	defer tx.Rollback()
	now := domain.FormatTime(s.now())
	res, err := tx.ExecContext(ctx, `UPDATE verification_tokens SET used_at=? WHERE jti=? AND identity_id=? AND used_at IS NULL`, now, claims.ID, claims.Subject)
	if err != nil {
		return domain.Identity{}, providerErr(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Identity{}, invalid
	}
	if _, err := tx.ExecContext(ctx, `UPDATE identities SET verified=1, updated_at=? WHERE id=?`, now, claims.Subject); err != nil {
		return domain.Identity{}, providerErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Identity{}, providerErr(op, err)
	}
	return s.Lookup(ctx, claims.Subject)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// RevokeSession records a logged-out session token id until the token would
// have expired anyway. Expired entries are pruned on the way.
func (s *Service) RevokeSession(ctx context.Context, jti, identityID string, expiresAt time.Time) error {
	const op = "revoke session"
	if strings.TrimSpace(jti) == "" {
		return apperr.Validation(op, "token id is required")
	}
	now := domain.FormatTime(s.now())
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at < ?`, now); err != nil {
		return apperr.Persistence(op, err)
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO revoked_sessions(jti,identity_id,expires_at,revoked_at) VALUES (?,?,?,?) ON CONFLICT(jti) DO NOTHING`,
		jti, identityID, domain.FormatTime(expiresAt), now)
	if err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}

// SessionRevoked reports whether the session token id was logged out.
func (s *Service) SessionRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, `SELECT 1 FROM revoked_sessions WHERE jti=?`, jti).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Persistence("check session", err)
	}
	return true, nil
}
