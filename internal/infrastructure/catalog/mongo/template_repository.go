package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

type locationDocument struct {
	Page       int     `bson:"page"`
	StartX     float64 `bson:"start_x"`
	StartY     float64 `bson:"start_y"`
	EndX       float64 `bson:"end_x"`
	EndY       float64 `bson:"end_y"`
	InputKind  string  `bson:"input_kind"`
	OutputType string  `bson:"output_type,omitempty"`
	Value      string  `bson:"value,omitempty"`
	Position   string  `bson:"position,omitempty"`
}

type questionDocument struct {
	ID        string             `bson:"id"`
	Text      string             `bson:"text"`
	Locations []locationDocument `bson:"locations"`
}

type templateDocument struct {
	ID        string             `bson:"_id"`
	Name      string             `bson:"name"`
	DocType   string             `bson:"doc_type"`
	StateTag  string             `bson:"state_tag,omitempty"`
	FileKey   string             `bson:"file_key"`
	PageCount int                `bson:"page_count"`
	Questions []questionDocument `bson:"questions"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// TemplateRepository keeps one document per template with its questions and
// answer locations embedded.
type TemplateRepository struct {
	collection *mongo.Collection
}

func NewTemplateRepository(collection *mongo.Collection) *TemplateRepository {
	return &TemplateRepository{collection: collection}
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (r *TemplateRepository) EnsureIndexes(ctx context.Context) error {
	// Question ids resolve to exactly one template.
	questionIDs := options.Index().
		SetName("questions_id_unique").
		SetUnique(true).
		SetPartialFilterExpression(bson.M{"questions.id": bson.M{"$exists": true}})

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "questions.id", Value: 1}}, Options: questionIDs},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create template indexes: %w", err)
	}
	return nil
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var doc templateDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.WrapError(domain.ErrNotFound, "get template", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	tpl := doc.toDomain()
	return &tpl, nil
}

func (r *TemplateRepository) FindQuestion(ctx context.Context, questionID string) (*domain.Template, domain.Question, error) {
	var doc templateDocument
	err := r.collection.FindOne(ctx, bson.M{"questions.id": questionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.Question{}, domain.WrapError(domain.ErrNotFound, "find question", fmt.Errorf("id=%s", questionID))
		}
		return nil, domain.Question{}, fmt.Errorf("find question: %w", err)
	}
	tpl := doc.toDomain()
	question, ok := tpl.Question(questionID)
	if !ok {
		return nil, domain.Question{}, domain.WrapError(domain.ErrNotFound, "find question", fmt.Errorf("id=%s", questionID))
	}
	return &tpl, question, nil
}

func (r *TemplateRepository) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	cur, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]domain.Template, 0)
	for cur.Next(ctx) {
		var doc templateDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode template: %w", err)
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (r *TemplateRepository) UpsertTemplate(ctx context.Context, tpl *domain.Template) error {
	doc := fromDomain(tpl)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return domain.WrapError(domain.ErrConflict, "upsert template", err)
	}
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func fromDomain(tpl *domain.Template) templateDocument {
	doc := templateDocument{
		ID:        tpl.ID,
		Name:      tpl.Name,
		DocType:   tpl.DocType,
		StateTag:  tpl.StateTag,
		FileKey:   tpl.FileKey,
		PageCount: tpl.PageCount,
		Questions: make([]questionDocument, 0, len(tpl.Questions)),
		CreatedAt: tpl.CreatedAt,
		UpdatedAt: tpl.UpdatedAt,
	}
	for _, q := range tpl.Questions {
		qd := questionDocument{ID: q.ID, Text: q.Text, Locations: make([]locationDocument, 0, len(q.Locations))}
		for _, loc := range q.Locations {
			qd.Locations = append(qd.Locations, locationDocument{
				Page:       loc.Page,
				StartX:     loc.Rect.StartX,
				StartY:     loc.Rect.StartY,
				EndX:       loc.Rect.EndX,
				EndY:       loc.Rect.EndY,
				InputKind:  string(loc.InputKind),
				OutputType: loc.OutputType,
				Value:      loc.Value,
				Position:   loc.Position,
			})
		}
		doc.Questions = append(doc.Questions, qd)
	}
	return doc
}

func (d templateDocument) toDomain() domain.Template {
	tpl := domain.Template{
		ID:        d.ID,
		Name:      d.Name,
		DocType:   d.DocType,
		StateTag:  d.StateTag,
		FileKey:   d.FileKey,
		PageCount: d.PageCount,
		Questions: make([]domain.Question, 0, len(d.Questions)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, qd := range d.Questions {
		q := domain.Question{ID: qd.ID, Text: qd.Text, Locations: make([]domain.AnswerLocation, 0, len(qd.Locations))}
		for _, ld := range qd.Locations {
			q.Locations = append(q.Locations, domain.AnswerLocation{
				Page:       ld.Page,
				Rect:       domain.Rect{StartX: ld.StartX, StartY: ld.StartY, EndX: ld.EndX, EndY: ld.EndY},
				InputKind:  domain.InputKind(ld.InputKind),
				OutputType: ld.OutputType,
				Value:      ld.Value,
				Position:   ld.Position,
			})
		}
		tpl.Questions = append(tpl.Questions, q)
	}
	return tpl
}
