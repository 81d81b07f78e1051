package services

import (
	"context"
	"strings"
	"testing"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var adminActor = models.Actor{UserID: primitive.NewObjectID(), Email: "admin@egharbari.com", Role: models.RoleAdmin}

func generalInquiry(message string) InquiryInput {
	return InquiryInput{
		Type:    models.InquiryTypeGeneral,
		Name:    "Sita Sharma",
		Email:   "Sita@Example.com",
		Subject: "Question",
		Message: message,
	}
}

func TestInquiryFilter_BSON(t *testing.T) {
	read := false
	filter := InquiryFilter{Status: models.InquiryStatusClosed, IsRead: &read, Query: "sita"}.BSON()
	assert.Equal(t, models.InquiryStatusClosed, filter["status"])
	assert.Equal(t, false, filter["isRead"])
	assert.Len(t, filter["$or"], 3)
}

func TestInquiryService_CreateMessageBounds(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_inquiry_bounds")
	svc := NewInquiryService(database, testConfig())
	ctx := context.Background()

	_, err := svc.Create(ctx, generalInquiry("short"))
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Create(ctx, generalInquiry("   short   "))
	assert.True(t, apperrors.IsValidation(err), "length is measured after trimming")

	inquiry, err := svc.Create(ctx, generalInquiry("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, models.InquiryStatusPending, inquiry.Status)
	assert.False(t, inquiry.IsRead)
	assert.NotNil(t, inquiry.Replies)
	assert.Empty(t, inquiry.Replies)
	assert.Equal(t, "sita@example.com", inquiry.Email)

	// Counted in characters, not bytes.
	_, err = svc.Create(ctx, generalInquiry("नमस्ते नेपाल"))
	assert.NoError(t, err)

	_, err = svc.Create(ctx, generalInquiry(strings.Repeat("a", MaxInquiryMessageLength+1)))
	assert.True(t, apperrors.IsValidation(err))
}

func TestInquiryService_CreateValidation(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_inquiry_validation")
	svc := NewInquiryService(database, testConfig())
	ctx := context.Background()

	input := generalInquiry("A perfectly fine message")
	input.Email = "not-an-email"
	_, err := svc.Create(ctx, input)
	assert.True(t, apperrors.IsValidation(err))

	input = generalInquiry("A perfectly fine message")
	input.Subject = ""
	_, err = svc.Create(ctx, input)
	assert.True(t, apperrors.IsValidation(err))

	input = generalInquiry("A perfectly fine message")
	input.PropertyID = primitive.NewObjectID().Hex()
	_, err = svc.Create(ctx, input)
	assert.True(t, apperrors.IsValidation(err), "general inquiries must not reference a property")

	input = generalInquiry("A perfectly fine message")
	input.Type = models.InquiryTypeProperty
	_, err = svc.Create(ctx, input)
	assert.True(t, apperrors.IsValidation(err), "property inquiries require a property")

	input.PropertyID = primitive.NewObjectID().Hex()
	_, err = svc.Create(ctx, input)
	assert.True(t, apperrors.IsNotFound(err))

	input.Type = "complaint"
	_, err = svc.Create(ctx, input)
	assert.True(t, apperrors.IsValidation(err))
}

func TestInquiryService_Lifecycle(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_inquiry_lifecycle")
	properties := NewPropertyService(database, testConfig(), nil)
	svc := NewInquiryService(database, testConfig())
	ctx := context.Background()

	p1, err := properties.Create(ctx, houseInput("Hillside Home"), primitive.NilObjectID)
	require.NoError(t, err)

	inquiry, err := svc.Create(ctx, InquiryInput{
		Type:       models.InquiryTypeProperty,
		PropertyID: p1.ID.Hex(),
		Name:       "Ram",
		Email:      "ram@example.com",
		Message:    "Is this still available?",
	})
	require.NoError(t, err)
	assert.Equal(t, models.InquiryTypeProperty, inquiry.Type)
	require.NotNil(t, inquiry.PropertyID)
	assert.Equal(t, p1.ID, *inquiry.PropertyID)
	assert.Equal(t, "Inquiry about Hillside Home", inquiry.Subject)
	assert.Equal(t, p1.PropertyID, inquiry.Property.PropertyID)
	assert.Equal(t, models.InquiryStatusPending, inquiry.Status)

	// Admin opens it, twice.
	require.NoError(t, svc.MarkRead(ctx, inquiry.ID))
	require.NoError(t, svc.MarkRead(ctx, inquiry.ID))
	got, err := svc.Get(ctx, inquiry.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	unread, err := svc.CountUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	got, err = svc.AppendReply(ctx, inquiry.ID, "Yes, it is.", true)
	require.NoError(t, err)
	require.Len(t, got.Replies, 1)
	assert.True(t, got.Replies[0].IsAdmin)

	got, err = svc.AppendReply(ctx, inquiry.ID, "  Can I visit tomorrow?  ", false)
	require.NoError(t, err)
	require.Len(t, got.Replies, 2)
	assert.Equal(t, "Yes, it is.", got.Replies[0].Message)
	assert.Equal(t, "Can I visit tomorrow?", got.Replies[1].Message)
	assert.False(t, got.Replies[1].IsAdmin)
	assert.False(t, got.Replies[1].CreatedAt.Before(got.Replies[0].CreatedAt))

	got, err = svc.ChangeStatus(ctx, inquiry.ID, models.InquiryStatusResolved, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryStatusResolved, got.Status)
	got, err = svc.ChangeStatus(ctx, inquiry.ID, models.InquiryStatusPending, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.InquiryStatusPending, got.Status)

	// Identity transition is persisted and bumps updatedAt.
	again, err := svc.ChangeStatus(ctx, inquiry.ID, models.InquiryStatusPending, adminActor)
	require.NoError(t, err)
	assert.False(t, again.UpdatedAt.Before(got.UpdatedAt))

	_, err = svc.ChangeStatus(ctx, inquiry.ID, models.InquiryStatusClosed, models.Actor{Role: models.RoleUser})
	assert.True(t, apperrors.IsForbidden(err))
	_, err = svc.ChangeStatus(ctx, inquiry.ID, "archived", adminActor)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.ChangeStatus(ctx, inquiry.ID, models.InquiryStatusClosed, adminActor)
	require.NoError(t, err)

	_, err = svc.AppendReply(ctx, inquiry.ID, "Hello?", false)
	assert.True(t, apperrors.IsValidation(err), "submitter cannot reply to a closed inquiry")
	got, err = svc.AppendReply(ctx, inquiry.ID, "Closing note.", true)
	require.NoError(t, err)
	assert.Len(t, got.Replies, 3)

	_, err = svc.AppendReply(ctx, inquiry.ID, "   ", true)
	assert.True(t, apperrors.IsValidation(err))
}

func TestInquiryService_NotFound(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_inquiry_not_found")
	svc := NewInquiryService(database, testConfig())
	ctx := context.Background()
	missing := primitive.NewObjectID()

	assert.True(t, apperrors.IsNotFound(svc.MarkRead(ctx, missing)))
	_, err := svc.AppendReply(ctx, missing, "hello there", true)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.AppendReply(ctx, missing, "hello there", false)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.ChangeStatus(ctx, missing, models.InquiryStatusClosed, adminActor)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestInquiryService_Listing(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_inquiry_listing")
	svc := NewInquiryService(database, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, generalInquiry("Message number one"))
		require.NoError(t, err)
	}
	other := generalInquiry("Someone else asking")
	other.Email = "hari@example.com"
	created, err := svc.Create(ctx, other)
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, created.ID, models.InquiryStatusInProgress, adminActor)
	require.NoError(t, err)

	mine, err := svc.ListByEmail(ctx, "SITA@example.com", models.NewPageRequest(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.Pagination.Total)
	assert.Len(t, mine.Items, 2)

	padded, err := svc.ListByEmail(ctx, "  Sita@Example.COM ", models.NewPageRequest(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(3), padded.Pagination.Total)

	// Exact address match, not a pattern.
	none, err := svc.ListByEmail(ctx, "ita@example.com", models.NewPageRequest(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), none.Pagination.Total)

	_, err = svc.ListByEmail(ctx, "   ", models.NewPageRequest(1, 10))
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	all, err := svc.ListForAdmin(ctx, InquiryFilter{Query: "hari"}, models.NewPageRequest(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), all.Pagination.Total)

	counts, err := svc.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[models.InquiryStatusPending])
	assert.Equal(t, int64(1), counts[models.InquiryStatusInProgress])
	assert.Equal(t, int64(0), counts[models.InquiryStatusClosed])
}
