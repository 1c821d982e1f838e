package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/property-desk/internal/config"
	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/observability/metrics"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID, role string, expires time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func userToken(t *testing.T, userID string) string {
	return signToken(t, userID, "user", time.Now().Add(time.Hour))
}

type templatesFake struct {
	onboarded *domain.Template
	pdf       []byte
	err       error
}

func (f *templatesFake) Onboard(_ context.Context, tpl *domain.Template, original io.Reader) (*domain.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(original)
	if err != nil {
		return nil, err
	}
	f.onboarded, f.pdf = tpl, raw
	stored := *tpl
	stored.PageCount = 2
	stored.FileKey = "templates/" + tpl.ID + ".pdf"
	return &stored, nil
}

func (f *templatesFake) List(context.Context) ([]domain.Template, error) {
	return []domain.Template{{ID: "tpl-lease", Name: "Residential Lease"}}, f.err
}

func (f *templatesFake) Get(_ context.Context, id string) (*domain.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Template{ID: id, Name: "Residential Lease"}, nil
}

func (f *templatesFake) PageText(_ context.Context, _ string, page int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "page text", nil
}

type locatorFake struct {
	page int
	err  error
}

func (f *locatorFake) LocationsForPage(_ context.Context, _ string, page int) ([]domain.AnswerLocation, error) {
	f.page = page
	if f.err != nil {
		return nil, f.err
	}
	return []domain.AnswerLocation{{Page: page, InputKind: domain.InputSingleCheckbox, Rect: domain.Rect{StartX: 100, StartY: 700, EndX: 110, EndY: 720}}}, nil
}

func (f *locatorFake) LocationsForQuestion(context.Context, string) ([]domain.AnswerLocation, error) {
	return []domain.AnswerLocation{{Page: 1, InputKind: domain.InputSingleLine}}, f.err
}

type lifecycleFake struct {
	mu        sync.Mutex
	fills     []domain.FillRequest
	submitted [][]domain.AnswerInput
	owner     string
	result    *domain.AnswerResult
	err       error
}

func (f *lifecycleFake) doc(id string) *domain.WorkingDocument {
	return &domain.WorkingDocument{
		ID:         id,
		OwnerID:    f.owner,
		TemplateID: "tpl-lease",
		Name:       "lease_" + f.owner + ".pdf",
		URL:        "http://media.test/media/documents/lease_" + f.owner + ".pdf",
	}
}

func (f *lifecycleFake) RequestFill(_ context.Context, req domain.FillRequest) (*domain.WorkingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills = append(f.fills, req)
	f.owner = req.OwnerID
	if f.err != nil {
		return nil, f.err
	}
	return f.doc("doc-1"), nil
}

func (f *lifecycleFake) SubmitAnswer(ctx context.Context, ownerID, documentID string, answer domain.AnswerInput) (*domain.AnswerResult, error) {
	return f.SubmitAnswers(ctx, ownerID, documentID, []domain.AnswerInput{answer})
}

func (f *lifecycleFake) SubmitAnswers(_ context.Context, ownerID, documentID string, answers []domain.AnswerInput) (*domain.AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner = ownerID
	f.submitted = append(f.submitted, answers)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	doc := f.doc(documentID)
	return &domain.AnswerResult{Document: doc, DocURL: doc.URL}, nil
}

func (f *lifecycleFake) GetDocument(_ context.Context, ownerID, documentID string) (*domain.WorkingDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.owner = ownerID
	doc := f.doc(documentID)
	doc.IsSigned = true
	return doc, nil
}

func (f *lifecycleFake) ListDocuments(_ context.Context, ownerID string) ([]domain.WorkingDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.owner = ownerID
	return []domain.WorkingDocument{*f.doc("doc-1")}, nil
}

func (f *lifecycleFake) ListAnswers(context.Context, string, string) ([]domain.RecordedAnswer, error) {
	return []domain.RecordedAnswer{{DocumentID: "doc-1", QuestionID: "q-pets", Value: "true"}}, f.err
}

func (f *lifecycleFake) ExportAnswers(_ context.Context, _, documentID string, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "xlsx:"+documentID)
	return err
}

type chatFake struct {
	inputs     []domain.SendMessageInput
	attachment []byte
	after      int
	limit      int
	relayed    bool
	err        error
}

func (f *chatFake) SendMessage(_ context.Context, in domain.SendMessageInput) (*domain.SendMessageResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if in.Attachment != nil {
		raw, err := io.ReadAll(in.Attachment.Body)
		if err != nil {
			return nil, err
		}
		f.attachment = raw
		in.Attachment.Body = nil
	}
	f.inputs = append(f.inputs, in)
	return &domain.SendMessageResult{
		Message: domain.ChatMessage{ID: "msg-1", Sequence: 1, SenderID: in.SenderID, RecipientID: in.RecipientID, Text: in.Text},
		Topic:   "chat." + string(in.Channel) + "." + in.RecipientID,
		Relayed: f.relayed,
	}, nil
}

func (f *chatFake) ListConversations(_ context.Context, userID string) ([]domain.Conversation, error) {
	return []domain.Conversation{{ID: "conv-1", ParticipantA: userID, ParticipantB: "seller-1"}}, f.err
}

func (f *chatFake) ListMessages(_ context.Context, _ string, _ string, after, limit int) ([]domain.ChatMessage, error) {
	f.after, f.limit = after, limit
	return []domain.ChatMessage{{ID: "msg-2", Sequence: after + 1}}, f.err
}

type mediaFake struct {
	objects map[string][]byte
}

func (f *mediaFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	return nil
}

func (f *mediaFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "open object", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *mediaFake) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *mediaFake) URL(key string) string { return "http://media.test/media/" + key }

type testServer struct {
	handler   http.Handler
	templates *templatesFake
	locator   *locatorFake
	docs      *lifecycleFake
	chat      *chatFake
	media     *mediaFake
	metrics   *metrics.HTTPServerMetrics
}

func newTestServer(cfg config.Config) *testServer {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	s := &testServer{
		templates: &templatesFake{},
		locator:   &locatorFake{},
		docs:      &lifecycleFake{},
		chat:      &chatFake{relayed: true},
		media:     &mediaFake{objects: map[string][]byte{}},
		metrics:   metrics.NewHTTPServerMetrics(serviceName),
	}
	s.handler = NewRouter(cfg, Services{
		Templates: s.templates,
		Locator:   s.locator,
		Documents: s.docs,
		Chat:      s.chat,
		Media:     s.media,
		Metrics:   s.metrics,
	}).Handler()
	return s
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestServer(cfg).handler
}

func (s *testServer) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, req)
	return res
}

func (s *testServer) doJSON(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return s.do(t, method, target, token, reader, "application/json")
}

func (s *testServer) scrape(t *testing.T) string {
	t.Helper()
	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return res.Body.String()
}
