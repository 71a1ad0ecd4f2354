package service

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

const seedAdminUsername = "admin"

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

func validatePassword(password string) error {
	if len(strings.TrimSpace(password)) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}
	return nil
}

func findUser(users []domain.User, id int) (int, bool) {
	for i := range users {
		if users[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// EnsureAdmin seeds an Administrator account when no users exist. With an
// empty password a random one is generated and logged once.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	unlock := s.repo.Lock(store.Users)
	defer unlock()

	users, err := s.repo.Users(ctx)
	if err != nil {
		return false, err
	}
	if len(users) > 0 {
		return false, nil
	}

	generated := false
	if strings.TrimSpace(password) == "" {
		buf := make([]byte, 9)
		if _, err := rand.Read(buf); err != nil {
			return false, err
		}
		password = hex.EncodeToString(buf)
		generated = true
	}
	hash, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	admin := domain.User{
		ID:           1,
		Username:     seedAdminUsername,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         domain.RoleAdministrator,
		Status:       domain.UserStatusActive,
		CreatedAt:    s.clock(),
	}
	if err := s.repo.SaveUsers(ctx, []domain.User{admin}); err != nil {
		return false, err
	}

	event := log.Warn().Str("component", "service").Str("username", admin.Username)
	if generated {
		event = event.Str("password", password)
	}
	event.Msg("seeded administrator account")
	return true, nil
}

// Authenticate checks a username and password against the users collection.
// Legacy plain-text passwords are upgraded to bcrypt hashes on first use.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	unlock := s.repo.Lock(store.Users)
	defer unlock()

	users, err := s.repo.Users(ctx)
	if err != nil {
		return domain.User{}, err
	}
	for i, user := range users {
		if strings.ToLower(user.Username) != username {
			continue
		}
		if !isPasswordHash(user.PasswordHash) {
			if user.PasswordHash == "" || user.PasswordHash != password {
				return domain.User{}, ErrInvalidCredentials
			}
			if hashed, err := hashPassword(password); err == nil {
				users[i].PasswordHash = hashed
				if err := s.repo.SaveUsers(ctx, users); err != nil {
					log.Warn().Err(err).Str("component", "service").Str("username", username).Msg("password hash upgrade failed")
				}
			}
		} else if !verifyPassword(user.PasswordHash, password) {
			return domain.User{}, ErrInvalidCredentials
		}
		if user.Status != domain.UserStatusActive {
			return domain.User{}, ErrInactiveAccount
		}
		return users[i], nil
	}
	return domain.User{}, ErrInvalidCredentials
}

// RecordLogin writes the auth activity entry for a successful login.
func (s *Service) RecordLogin(ctx context.Context, user domain.User) {
	ctx = WithActor(ctx, domain.Actor{UserID: user.ID, Username: user.Username, Role: user.Role})
	s.logActivity(ctx, domain.CategoryAuth, "login", user.Username+" signed in")
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if _, err := requireRole(ctx, domain.RoleAdministrator); err != nil {
		return nil, err
	}
	users, err := s.repo.Users(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return cmp.Compare(a.ID, b.ID)
	})
	views := make([]domain.UserView, 0, len(users))
	for _, user := range users {
		views = append(views, user.View())
	}
	return views, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	if _, err := requireRole(ctx, domain.RoleAdministrator); err != nil {
		return domain.UserView{}, err
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 || strings.ContainsAny(username, " \t\r\n") {
		return domain.UserView{}, fmt.Errorf("%w: username must be at least 3 characters without spaces", store.ErrInvalidInput)
	}
	if !domain.IsValidRole(req.Role) {
		return domain.UserView{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, req.Role)
	}
	if err := validatePassword(req.Password); err != nil {
		return domain.UserView{}, err
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserView{}, fmt.Errorf("hash password: %w", err)
	}

	unlock := s.repo.Lock(store.Users)
	users, err := s.repo.Users(ctx)
	if err != nil {
		unlock()
		return domain.UserView{}, err
	}
	user := domain.User{
		Username:     username,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         req.Role,
		Status:       domain.UserStatusActive,
		CreatedAt:    s.clock(),
	}
	for _, existing := range users {
		if strings.EqualFold(existing.Username, username) {
			unlock()
			return domain.UserView{}, fmt.Errorf("%w: username %s already exists", store.ErrConflict, username)
		}
		user.ID = max(user.ID, existing.ID)
	}
	user.ID++
	err = s.repo.SaveUsers(ctx, append(users, user))
	unlock()
	if err != nil {
		return domain.UserView{}, err
	}

	s.logActivity(ctx, domain.CategoryUsers, "user_created", fmt.Sprintf("created %s as %s", user.Username, user.Role))
	return user.View(), nil
}

func (s *Service) UpdateUser(ctx context.Context, id int, req domain.UserUpdateRequest) (domain.UserView, error) {
	actor, err := requireRole(ctx, domain.RoleAdministrator)
	if err != nil {
		return domain.UserView{}, err
	}
	if req.Role != nil && !domain.IsValidRole(*req.Role) {
		return domain.UserView{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidInput, *req.Role)
	}
	if req.Status != nil && *req.Status != domain.UserStatusActive && *req.Status != domain.UserStatusInactive {
		return domain.UserView{}, fmt.Errorf("%w: status must be Active or Inactive", store.ErrInvalidInput)
	}
	if id == actor.UserID && ((req.Role != nil && *req.Role != domain.RoleAdministrator) ||
		(req.Status != nil && *req.Status != domain.UserStatusActive)) {
		return domain.UserView{}, fmt.Errorf("%w: administrators may not demote or deactivate themselves", store.ErrInvalidInput)
	}
	var hash string
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return domain.UserView{}, err
		}
		if hash, err = hashPassword(*req.Password); err != nil {
			return domain.UserView{}, fmt.Errorf("hash password: %w", err)
		}
	}

	unlock := s.repo.Lock(store.Users)
	users, err := s.repo.Users(ctx)
	if err != nil {
		unlock()
		return domain.UserView{}, err
	}
	idx, ok := findUser(users, id)
	if !ok {
		unlock()
		return domain.UserView{}, fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	user := users[idx]
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Status != nil {
		user.Status = *req.Status
	}
	if hash != "" {
		user.PasswordHash = hash
	}
	users[idx] = user
	err = s.repo.SaveUsers(ctx, users)
	unlock()
	if err != nil {
		return domain.UserView{}, err
	}

	s.logActivity(ctx, domain.CategoryUsers, "user_updated", fmt.Sprintf("updated %s (%s, %s)", user.Username, user.Role, user.Status))
	return user.View(), nil
}

func (s *Service) DeleteUser(ctx context.Context, id int) error {
	actor, err := requireRole(ctx, domain.RoleAdministrator)
	if err != nil {
		return err
	}
	if id == actor.UserID {
		return fmt.Errorf("%w: administrators may not delete themselves", store.ErrInvalidInput)
	}

	unlock := s.repo.Lock(store.Users)
	users, err := s.repo.Users(ctx)
	if err != nil {
		unlock()
		return err
	}
	idx, ok := findUser(users, id)
	if !ok {
		unlock()
		return fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	removed := users[idx]
	err = s.repo.SaveUsers(ctx, slices.Delete(users, idx, idx+1))
	unlock()
	if err != nil {
		return err
	}

	s.logActivity(ctx, domain.CategoryUsers, "user_deleted", "deleted "+removed.Username)
	return nil
}
