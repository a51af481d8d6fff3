package testing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the plain-text password of every fixture user
const TestPassword = "TestPass123!"

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// UserOption tweaks a fixture user before it is inserted
type UserOption func(*models.User)

// WithWhatsAppKey configures the messaging credential
func WithWhatsAppKey(key string) UserOption {
	return func(u *models.User) { u.WhatsAppAPIKey = &key }
}

// WithGeminiKey configures the AI credential
func WithGeminiKey(key string) UserOption {
	return func(u *models.User) { u.GeminiAPIKey = &key }
}

// WithKnowledgeBase stores a knowledge base text
func WithKnowledgeBase(text string) UserOption {
	return func(u *models.User) { u.GeminiKnowledgeBase = &text }
}

// CreateTestUser creates a user with a unique email and TestPassword
func (tf *TestFixtures) CreateTestUser(opts ...UserOption) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:              fmt.Sprintf("user.%s@example.com", uuid.NewString()[:8]),
		PasswordHash:       string(hashedPassword),
		Name:               "Ana García",
		EmailNotifications: true,
		PushNotifications:  true,
		ProfileVisible:     true,
		Analytics:          true,
		Language:           models.DefaultLanguage,
		Timezone:           models.DefaultTimezone,
		Theme:              models.DefaultTheme,
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestContact creates an active contact for the user
func (tf *TestFixtures) CreateTestContact(userID uint, name, phone string, tags ...string) (*models.Contact, error) {
	contact := &models.Contact{
		UserID: userID,
		Name:   name,
		Phone:  phone,
		Status: models.ContactStatusActive,
		Tags:   tags,
	}
	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestCampaign creates a campaign bound to the given contacts
func (tf *TestFixtures) CreateTestCampaign(userID uint, status models.CampaignStatus, contactIDs ...uint) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UserID:          userID,
		Name:            "Campaña de prueba",
		Message:         "Hola {nombre}, tu número es {telefono}",
		Status:          status,
		TotalRecipients: int64(len(contactIDs)),
	}
	if status == models.CampaignStatusActive || status == models.CampaignStatusCompleted {
		campaign.SentAt = utils.UTCNowPtr()
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}

	for _, id := range contactIDs {
		link := &models.CampaignContact{CampaignID: campaign.ID, ContactID: id}
		if err := tf.DB.DB.Create(link).Error; err != nil {
			return nil, fmt.Errorf("failed to link contact %d: %w", id, err)
		}
	}
	return campaign, nil
}

// CreateTestBotActivity appends one activity row
func (tf *TestFixtures) CreateTestBotActivity(userID uint, activityType string, status models.ActivityStatus, at time.Time) (*models.BotActivity, error) {
	activity := &models.BotActivity{
		UserID:       userID,
		ActivityType: activityType,
		Status:       status,
		CreatedAt:    at,
	}
	if err := tf.DB.DB.Create(activity).Error; err != nil {
		return nil, fmt.Errorf("failed to create bot activity: %w", err)
	}
	return activity, nil
}

// CreateTestAuditLog creates an audit log row
func (tf *TestFixtures) CreateTestAuditLog(userID *uint, action string, success bool) (*models.AuditLog, error) {
	auditLog := &models.AuditLog{
		UserID:      userID,
		Action:      action,
		Description: utils.ToPtr("fixture"),
		IPAddress:   utils.ToPtr("127.0.0.1"),
		UserAgent:   utils.ToPtr("go-test"),
		Success:     utils.ToPtr(success),
	}
	if err := tf.DB.DB.Create(auditLog).Error; err != nil {
		return nil, fmt.Errorf("failed to create audit log: %w", err)
	}
	return auditLog, nil
}

// GenerateSecureToken returns a random URL-safe token
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:length], nil
}
