package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"egharbari/api/internal/db"
	"egharbari/api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Template ids of the notification emails.
const (
	TemplateInquiryReceived     = "inquiry_received"
	TemplateInquiryConfirmation = "inquiry_confirmation"
	TemplateInquiryReply        = "inquiry_reply"
)

// DefaultLocale is used when a template is requested without a locale.
const DefaultLocale = "en"

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	TemplateInquiryReceived: {
		TemplateID: TemplateInquiryReceived,
		Locale:     DefaultLocale,
		Subject:    "[{{.AppName}}] New {{.Inquiry.Type}} inquiry: {{.Inquiry.Subject}}",
		Body: `A new inquiry was submitted.

From: {{.Inquiry.Name}} <{{.Inquiry.Email}}>{{if .Inquiry.Phone}}
Phone: {{.Inquiry.Phone}}{{end}}{{if .Inquiry.Property}}
Property: {{.Inquiry.Property.Name}} ({{.Inquiry.Property.PropertyID}}){{end}}

{{.Inquiry.Message}}
`,
	},
	TemplateInquiryConfirmation: {
		TemplateID: TemplateInquiryConfirmation,
		Locale:     DefaultLocale,
		Subject:    "We received your inquiry: {{.Inquiry.Subject}}",
		Body: `Hello {{.Inquiry.Name}},

Thank you for contacting {{.AppName}}. Our team will get back to you shortly.

Your message:
{{.Inquiry.Message}}
`,
	},
	TemplateInquiryReply: {
		TemplateID: TemplateInquiryReply,
		Locale:     DefaultLocale,
		Subject:    "Re: {{.Inquiry.Subject}}",
		Body: `Hello {{.Inquiry.Name}},

{{.Reply}}

You can follow up from your account on {{.AppName}}.
`,
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	Render(ctx context.Context, templateID, locale string, data any) (subject, body string, err error)
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(database *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{
		db: database,
	}
}

// GetTemplate retrieves an email template by ID and locale, falling back to the built-in default.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	if s.db != nil {
		var tmpl models.EmailTemplate
		err := s.db.Collection(db.EmailTemplatesCollection).FindOne(ctx, bson.M{
			"templateId": templateID,
			"locale":     locale,
		}).Decode(&tmpl)
		if err == nil {
			return &tmpl, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}

	if defaultTemplate, ok := defaultEmailTemplates[templateID]; ok {
		return &defaultTemplate, nil
	}
	return nil, fmt.Errorf("template not found: %s (locale: %s)", templateID, locale)
}

// Render executes the subject and body templates against data.
func (s *EmailTemplateService) Render(ctx context.Context, templateID, locale string, data any) (string, string, error) {
	tmpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}
	subject, err := execute(templateID+".subject", tmpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(templateID+".body", tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	// Header injection guard.
	subject = strings.Join(strings.Fields(subject), " ")
	return subject, body, nil
}

func execute(name, source string, data any) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SaveTemplate saves an email template to the database
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	if _, err := template.New("check").Parse(tmpl.Subject + tmpl.Body); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	now := time.Now().UTC()
	filter := bson.M{
		"templateId": tmpl.TemplateID,
		"locale":     tmpl.Locale,
	}
	update := bson.M{
		"$set":         bson.M{"subject": tmpl.Subject, "body": tmpl.Body, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err := s.db.Collection(db.EmailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}

// DeleteTemplate deletes an email template from the database
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID string, locale string) error {
	_, err := s.db.Collection(db.EmailTemplatesCollection).DeleteOne(ctx, bson.M{
		"templateId": templateID,
		"locale":     locale,
	})
	if err != nil {
		return fmt.Errorf("error deleting template: %w", err)
	}
	return nil
}
