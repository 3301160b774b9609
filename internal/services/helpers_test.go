package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/polyrelay/go-translate-backend/internal/domain"
	"github.com/polyrelay/go-translate-backend/internal/lineapi"
)

// ---------- test helpers ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.GroupSettings{},
		&domain.GroupLanguage{},
		&domain.UsageCounter{},
		&domain.Subscription{},
		&domain.PendingConfirmation{},
		&domain.ContextMessage{},
		&domain.ProcessedWebhookEvent{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeMessenger records every outbound message.
type fakeMessenger struct {
	replies []sentMessage
	pushes  []sentMessage
	err     error
}

type sentMessage struct {
	To       string // reply token or push target
	Messages []lineapi.Message
}

func (f *fakeMessenger) Reply(_ context.Context, replyToken string, messages ...lineapi.Message) error {
	if f.err != nil {
		return f.err
	}
	f.replies = append(f.replies, sentMessage{To: replyToken, Messages: messages})
	return nil
}

func (f *fakeMessenger) Push(_ context.Context, to string, messages ...lineapi.Message) error {
	if f.err != nil {
		return f.err
	}
	f.pushes = append(f.pushes, sentMessage{To: to, Messages: messages})
	return nil
}

func (f *fakeMessenger) lastReplyText() string {
	if len(f.replies) == 0 {
		return ""
	}
	msgs := f.replies[len(f.replies)-1].Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[0].Text
}

// fakeTranslator returns canned responses or errors, counting calls.
type fakeTranslator struct {
	resp  *domain.TranslationResponse
	err   error
	calls int
}

func (f *fakeTranslator) Translate(_ context.Context, _ domain.TranslationRequest) (*domain.TranslationResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// fakeNotices translates notices by tagging the language code.
type fakeNotices struct {
	err error
}

func (f *fakeNotices) TranslateNotice(_ context.Context, baseText string, targets []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(targets))
	for _, l := range targets {
		out[l] = "[" + l + "] " + baseText
	}
	return out, nil
}

// fakeCheckout returns a fixed upgrade URL.
type fakeCheckout struct {
	url string
	err error
}

func (f *fakeCheckout) CheckoutURL(_ context.Context, _ string) (string, error) {
	return f.url, f.err
}

// fakeAnalyzer returns a canned language preference.
type fakeAnalyzer struct {
	pref *domain.LanguagePreference
	err  error
}

func (f *fakeAnalyzer) AnalyzeLanguages(_ context.Context, _ string) (*domain.LanguagePreference, error) {
	return f.pref, f.err
}

// fakeClassifier returns a canned command decision.
type fakeClassifier struct {
	dec *domain.CommandDecision
	err error
}

func (f *fakeClassifier) ClassifyCommand(_ context.Context, _ string) (*domain.CommandDecision, error) {
	return f.dec, f.err
}

// fakeProfiles resolves every member to the same name.
type fakeProfiles struct {
	name string
}

func (f *fakeProfiles) MemberName(_ context.Context, _, _ string) (string, error) {
	return f.name, nil
}

// seedGroup configures an enabled group with the given languages.
func seedGroup(t *testing.T, db *gorm.DB, groupID string, langs ...domain.LanguageChoice) {
	t.Helper()
	ctx := context.Background()
	if err := setTranslationEnabledForTest(ctx, db, groupID); err != nil {
		t.Fatalf("enable group: %v", err)
	}
	for i, l := range langs {
		if err := db.Create(&domain.GroupLanguage{
			GroupID:  groupID,
			LangCode: l.Code,
			LangName: l.Name,
			Position: i,
		}).Error; err != nil {
			t.Fatalf("seed language: %v", err)
		}
	}
}

func setTranslationEnabledForTest(ctx context.Context, db *gorm.DB, groupID string) error {
	return db.WithContext(ctx).Create(&domain.GroupSettings{
		GroupID:            groupID,
		TranslationEnabled: true,
	}).Error
}
