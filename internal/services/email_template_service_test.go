package services

import (
	"context"
	"testing"

	"egharbari/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailTemplateService_RenderDefaults(t *testing.T) {
	svc := NewEmailTemplateService(nil)
	inquiry := &models.Inquiry{
		Type:     models.InquiryTypeProperty,
		Name:     "Ram",
		Email:    "ram@example.com",
		Subject:  "Inquiry about\r\nBcc: evil@example.com Hillside",
		Message:  "Is this still available?",
		Property: &models.PropertyRef{Name: "Hillside Home", PropertyID: "EGB-HOU-00001"},
	}

	subject, body, err := svc.Render(context.Background(), TemplateInquiryReceived, "", map[string]any{
		"AppName": "eGharBari",
		"Inquiry": inquiry,
	})
	require.NoError(t, err)
	assert.NotContains(t, subject, "\n")
	assert.Contains(t, subject, "[eGharBari] New property inquiry")
	assert.Contains(t, body, "Ram <ram@example.com>")
	assert.Contains(t, body, "Property: Hillside Home (EGB-HOU-00001)")

	_, body, err = svc.Render(context.Background(), TemplateInquiryReply, "en", map[string]any{
		"AppName": "eGharBari",
		"Inquiry": inquiry,
		"Reply":   "Yes, it is.",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Yes, it is.")

	_, _, err = svc.Render(context.Background(), "unknown", "", nil)
	assert.Error(t, err)
}

func TestEmailTemplateService_StoredOverride(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_email_templates")
	svc := NewEmailTemplateService(database)
	ctx := context.Background()

	require.NoError(t, svc.SaveTemplate(ctx, &models.EmailTemplate{
		TemplateID: TemplateInquiryReply,
		Locale:     "ne",
		Subject:    "जवाफ: {{.Inquiry.Subject}}",
		Body:       "{{.Reply}}",
	}))

	subject, body, err := svc.Render(ctx, TemplateInquiryReply, "ne", map[string]any{
		"Inquiry": &models.Inquiry{Subject: "Flat"},
		"Reply":   "OK",
	})
	require.NoError(t, err)
	assert.Equal(t, "जवाफ: Flat", subject)
	assert.Equal(t, "OK", body)

	require.NoError(t, svc.DeleteTemplate(ctx, TemplateInquiryReply, "ne"))
	subject, _, err = svc.Render(ctx, TemplateInquiryReply, "ne", map[string]any{"Inquiry": &models.Inquiry{Subject: "Flat"}})
	require.NoError(t, err)
	assert.Equal(t, "Re: Flat", subject)
}
