package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"chatwave-backend/internal/db"
	"chatwave-backend/internal/feed"
	"chatwave-backend/internal/idgen"
	"chatwave-backend/internal/logger"
	"chatwave-backend/internal/models"
	"chatwave-backend/internal/storage"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	minPasswordLen = 6
	maxNameLen     = 50
	maxBioLen      = 160
)

type UserService struct {
	db       *db.DB
	notifier feed.Notifier
	blobs    storage.BlobStore
	tokens   *TokenIssuer
	now      func() time.Time
}

func NewUserService(database *db.DB, notifier feed.Notifier, blobs storage.BlobStore, tokens *TokenIssuer) *UserService {
	return &UserService{db: database, notifier: notifier, blobs: blobs, tokens: tokens, now: time.Now}
}

func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name is too long", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		ID:           idgen.NewUUID(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		AvatarURL:    PlaceholderAvatar(name),
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	notify(ctx, s.notifier, feed.TopicUsers)
	return &user, nil
}

func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var user models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.loadOverlays(ctx, []*models.User{&user}); err != nil {
		return nil, err
	}
	if err := s.SetOnline(ctx, user.ID, true); err != nil {
		return nil, err
	}
	user.Online = true
	return s.issue(&user)
}

// Logout marks the user offline. Tokens stay valid until they expire.
func (s *UserService) Logout(ctx context.Context, id string) error {
	return s.SetOnline(ctx, id, false)
}

// Refresh exchanges a refresh token for a new token pair.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.issue(user)
}

func (s *UserService) issue(user *models.User) (*models.AuthResponse, error) {
	token, err := s.tokens.GenerateJWT(user.ID, user.Name)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID, user.Name)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, RefreshToken: refresh, User: user}, nil
}

// GetUser returns the user with mutes, blocks and themes filled in.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if err := s.loadOverlays(ctx, []*models.User{&user}); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every user ordered by name. Callers filter out themselves
// and whoever they blocked.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("name asc, id asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	ptrs := make([]*models.User, len(users))
	for i := range users {
		ptrs[i] = &users[i]
	}
	if err := s.loadOverlays(ctx, ptrs); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserService) loadOverlays(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}
	byID := make(map[string]*models.User, len(users))
	ids := make([]string, 0, len(users))
	for _, u := range users {
		byID[u.ID] = u
		ids = append(ids, u.ID)
	}

	tx := s.db.WithContext(ctx)
	var mutes []models.UserMute
	if err := tx.Where("user_id IN ?", ids).Order("chat_id").Find(&mutes).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	var blocks []models.UserBlock
	if err := tx.Where("user_id IN ?", ids).Order("blocked_id").Find(&blocks).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	var themes []models.UserChatTheme
	if err := tx.Where("user_id IN ?", ids).Find(&themes).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	for _, m := range mutes {
		u := byID[m.UserID]
		u.MutedChats = append(u.MutedChats, m.ChatID)
	}
	for _, b := range blocks {
		u := byID[b.UserID]
		u.BlockedUsers = append(u.BlockedUsers, b.BlockedID)
	}
	for _, t := range themes {
		u := byID[t.UserID]
		if u.ChatThemes == nil {
			u.ChatThemes = make(map[string]string)
		}
		u.ChatThemes[t.ChatID] = t.Theme
	}
	return nil
}

// SetOnline records presence. A missing user is logged and ignored.
func (s *UserService) SetOnline(ctx context.Context, id string, online bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("online", online)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Warn().Str("user_id", id).Msg("presence update for unknown user")
		return nil
	}
	notify(ctx, s.notifier, feed.TopicUsers)
	return nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, req models.ProfileUpdate) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name must be 1 to %d characters", ErrValidation, maxNameLen)
	}
	updates := map[string]interface{}{
		"name":             name,
		"profile_complete": true,
	}
	if req.Bio != nil {
		bio := strings.TrimSpace(*req.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			return nil, fmt.Errorf("%w: bio must be at most %d characters", ErrValidation, maxBioLen)
		}
		updates["bio"] = bio
	}

	if err := s.update(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// UpdateAvatar uploads the file and points the user's avatar at it. Nothing is
// written when the upload fails.
func (s *UserService) UpdateAvatar(ctx context.Context, id string, file models.Attachment) (*models.User, error) {
	if s.blobs == nil {
		return nil, ErrUploadFailed
	}
	avatarURL, err := s.blobs.Put(ctx, storage.AvatarKey(id, s.now(), file.FileName), file.ContentType, file.Body)
	if err != nil {
		logger.LogError(err, "upload avatar")
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := s.update(ctx, id, map[string]interface{}{"avatar_url": avatarURL}); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *UserService) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	notify(ctx, s.notifier, feed.TopicUsers)
	return nil
}

// ToggleMute flips whether the user muted the conversation and returns the new state.
func (s *UserService) ToggleMute(ctx context.Context, userID, chatID string) (bool, error) {
	if chatID == "" {
		return false, fmt.Errorf("%w: chat id is required", ErrValidation)
	}
	muted, err := s.toggle(ctx, &models.UserMute{UserID: userID, ChatID: chatID})
	if err != nil {
		return false, err
	}
	notify(ctx, s.notifier, feed.TopicUsers)
	return muted, nil
}

// ToggleBlock flips whether the user blocked other and returns the new state.
// Blocking only hides; no message or conversation is touched.
func (s *UserService) ToggleBlock(ctx context.Context, userID, otherID string) (bool, error) {
	if otherID == "" || otherID == userID {
		return false, fmt.Errorf("%w: cannot block this user", ErrValidation)
	}
	blocked, err := s.toggle(ctx, &models.UserBlock{UserID: userID, BlockedID: otherID})
	if err != nil {
		return false, err
	}
	notify(ctx, s.notifier, feed.TopicUsers)
	return blocked, nil
}

// toggle deletes row if present, inserts it otherwise. Returns true when inserted.
func (s *UserService) toggle(ctx context.Context, row interface{}) (bool, error) {
	var inserted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(row).Delete(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		inserted = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return inserted, nil
}

func (s *UserService) SetChatTheme(ctx context.Context, userID, chatID, theme string) error {
	theme = strings.TrimSpace(theme)
	if chatID == "" || theme == "" {
		return fmt.Errorf("%w: chat id and theme are required", ErrValidation)
	}
	row := models.UserChatTheme{UserID: userID, ChatID: chatID, Theme: theme}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"theme"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	notify(ctx, s.notifier, feed.TopicUsers)
	return nil
}

// PlaceholderAvatar is the generated avatar for users and rooms without one.
func PlaceholderAvatar(name string) string {
	initial := "?"
	if r, _ := utf8.DecodeRuneInString(strings.TrimSpace(name)); r != utf8.RuneError {
		initial = strings.ToUpper(string(r))
	}
	return "https://placehold.co/100x100.png?text=" + url.QueryEscape(initial)
}
