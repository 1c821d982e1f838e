package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

type catalogFake struct {
	templates map[string]*domain.Template
	upserted  *domain.Template
	err       error
}

func newCatalogFake(templates ...*domain.Template) *catalogFake {
	f := &catalogFake{templates: make(map[string]*domain.Template)}
	for _, tpl := range templates {
		f.templates[tpl.ID] = tpl
	}
	return f
}

func (f *catalogFake) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	if f.err != nil {
		return nil, f.err
	}
	tpl, ok := f.templates[id]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "get template", "id="+id)
	}
	copyTpl := *tpl
	return &copyTpl, nil
}

func (f *catalogFake) FindQuestion(_ context.Context, questionID string) (*domain.Template, domain.Question, error) {
	for _, tpl := range f.templates {
		if q, ok := tpl.Question(questionID); ok {
			return tpl, q, nil
		}
	}
	return nil, domain.Question{}, domain.NewError(domain.ErrNotFound, "find question", "id="+questionID)
}

func (f *catalogFake) ListTemplates(context.Context) ([]domain.Template, error) {
	out := make([]domain.Template, 0, len(f.templates))
	for _, tpl := range f.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (f *catalogFake) UpsertTemplate(_ context.Context, tpl *domain.Template) error {
	if f.err != nil {
		return f.err
	}
	copyTpl := *tpl
	f.upserted = &copyTpl
	f.templates[tpl.ID] = &copyTpl
	return nil
}

type docRepoFake struct {
	mu         sync.Mutex
	docs       map[string]*domain.WorkingDocument
	answers    map[string]map[string]domain.RecordedAnswer
	claims     int
	touches    int
	markSigned int
	deliveries []bool
	listErr    error
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{
		docs:    make(map[string]*domain.WorkingDocument),
		answers: make(map[string]map[string]domain.RecordedAnswer),
	}
}

func (f *docRepoFake) put(doc domain.WorkingDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = &doc
}

func (f *docRepoFake) ClaimWorkingDocument(_ context.Context, doc *domain.WorkingDocument) (*domain.WorkingDocument, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	for _, existing := range f.docs {
		if existing.OwnerID == doc.OwnerID && existing.TemplateID == doc.TemplateID {
			copyDoc := *existing
			return &copyDoc, false, nil
		}
	}
	stored := *doc
	f.docs[doc.ID] = &stored
	copyDoc := stored
	return &copyDoc, true, nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.WorkingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "get document", "id="+id)
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) GetByOwnerTemplate(_ context.Context, ownerID, templateID string) (*domain.WorkingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID && doc.TemplateID == templateID {
			copyDoc := *doc
			return &copyDoc, nil
		}
	}
	return nil, domain.NewError(domain.ErrNotFound, "get document", ownerID+"/"+templateID)
}

func (f *docRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.WorkingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WorkingDocument, 0)
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) TouchModified(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	f.docs[id].LastModified = at
	return nil
}

func (f *docRepoFake) MarkSigned(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markSigned++
	doc := f.docs[id]
	doc.IsSigned = true
	doc.SignedAt = &at
	return nil
}

func (f *docRepoFake) RecordDelivery(_ context.Context, id string, delivered bool, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivered)
	doc := f.docs[id]
	doc.Delivered = delivered
	doc.DeliveryError = errMessage
	return nil
}

func (f *docRepoFake) ListUndelivered(_ context.Context, limit int) ([]domain.WorkingDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.WorkingDocument, 0)
	for _, doc := range f.docs {
		if doc.IsSigned && !doc.Delivered && len(out) < limit {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *docRepoFake) UpsertAnswer(_ context.Context, answer domain.RecordedAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers[answer.DocumentID] == nil {
		f.answers[answer.DocumentID] = make(map[string]domain.RecordedAnswer)
	}
	f.answers[answer.DocumentID][answer.QuestionID] = answer
	return nil
}

func (f *docRepoFake) ListAnswers(_ context.Context, documentID string) ([]domain.RecordedAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RecordedAnswer, 0)
	for _, a := range f.answers[documentID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saves   map[string]int
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{
		objects: make(map[string][]byte),
		saves:   make(map[string]int),
	}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	f.saves[key]++
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "open object", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *storageFake) URL(key string) string {
	return "http://media.test/media/" + key
}

func (f *storageFake) get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.objects[key])
}

type inspectorFake struct {
	info domain.PageInfo
	text string
	err  error
}

func letterPages(n int) domain.PageInfo {
	info := domain.PageInfo{PageCount: n}
	for i := 0; i < n; i++ {
		info.PageHeights = append(info.PageHeights, 792)
		info.PageWidths = append(info.PageWidths, 612)
	}
	return info
}

func (f *inspectorFake) Inspect(context.Context, []byte) (domain.PageInfo, error) {
	if f.err != nil {
		return domain.PageInfo{}, f.err
	}
	return f.info, nil
}

func (f *inspectorFake) PageText(_ context.Context, _ []byte, page int) (string, error) {
	return fmt.Sprintf("%s#%d", f.text, page), nil
}

// stamperFake appends one line per mark so stamped layers stay visible in
// the stored bytes.
type stamperFake struct {
	mu    sync.Mutex
	calls [][]domain.Mark
	err   error
}

func (f *stamperFake) Stamp(_ context.Context, data []byte, marks []domain.Mark) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.calls = append(f.calls, marks)
	f.mu.Unlock()

	out := bytes.NewBuffer(append([]byte(nil), data...))
	for _, m := range marks {
		if m.Checkmark {
			fmt.Fprintf(out, "\n%%check p%d %.0f %.0f", m.Page, m.X, m.Y)
			continue
		}
		fmt.Fprintf(out, "\n%%text p%d %.0f %.0f %s", m.Page, m.X, m.Y, m.Text)
	}
	return out.Bytes(), nil
}

func (f *stamperFake) lastMarks() []domain.Mark {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type notifierFake struct {
	mu     sync.Mutex
	events []domain.SignedDocumentEvent
	err    error
}

func (f *notifierFake) NotifySigned(_ context.Context, event domain.SignedDocumentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

type lockerFake struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	keys  []string
	err   error
	// beforeLock runs ahead of every acquisition.
	beforeLock func(key string)
}

func (f *lockerFake) Lock(_ context.Context, key string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.beforeLock != nil {
		f.beforeLock(key)
	}
	f.mu.Lock()
	if f.locks == nil {
		f.locks = make(map[string]*sync.Mutex)
	}
	l, ok := f.locks[key]
	if !ok {
		l = &sync.Mutex{}
		f.locks[key] = l
	}
	f.keys = append(f.keys, key)
	f.mu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

type exporterFake struct {
	answers []domain.RecordedAnswer
}

func (f *exporterFake) ExportAnswers(_ context.Context, doc *domain.WorkingDocument, answers []domain.RecordedAnswer, w io.Writer) error {
	f.answers = answers
	_, err := fmt.Fprintf(w, "%s:%d", doc.ID, len(answers))
	return err
}

type convStoreFake struct {
	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	messages      []domain.ChatMessage
	appendErr     error
}

func newConvStoreFake() *convStoreFake {
	return &convStoreFake{conversations: make(map[string]*domain.Conversation)}
}

func (f *convStoreFake) EnsureConversation(_ context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.conversations[conv.ID]; ok {
		copyConv := *existing
		return &copyConv, nil
	}
	stored := *conv
	f.conversations[conv.ID] = &stored
	copyConv := stored
	return &copyConv, nil
}

func (f *convStoreFake) NextSequence(_ context.Context, conversationID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return 0, errors.New("missing conversation")
	}
	conv.LastSequence++
	return conv.LastSequence, nil
}

func (f *convStoreFake) AppendMessage(_ context.Context, message domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *convStoreFake) GetConversation(_ context.Context, conversationID string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "get conversation", conversationID)
	}
	copyConv := *conv
	return &copyConv, nil
}

func (f *convStoreFake) ListConversations(_ context.Context, userID string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Conversation, 0)
	for _, conv := range f.conversations {
		if conv.Key().Has(userID) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *convStoreFake) ListMessages(_ context.Context, conversationID string, afterSequence, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ChatMessage, 0)
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID && msg.Sequence > afterSequence && len(out) < limit {
			out = append(out, msg)
		}
	}
	return out, nil
}

type relayFake struct {
	mu      sync.Mutex
	topics  []string
	payload [][]byte
	err     error
}

func (f *relayFake) Relay(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payload = append(f.payload, payload)
	return nil
}
