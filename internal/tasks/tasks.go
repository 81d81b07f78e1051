package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/config"
	"egharbari/api/internal/email"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
	"egharbari/api/internal/storage"
	"egharbari/api/internal/utils"
)

// Task types.
const (
	TypeInquiryNotify = "inquiry:notify"
	TypeImageProcess  = "image:process"
	TypeAssetRelease  = "asset:release"
)

// Queues, highest priority first.
const (
	QueueCritical = "critical"
	QueueImages   = "images"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// InquiryNotifyPayload asks for one notification email about an inquiry.
// An empty To means the inquiry's own address, or the admin address for
// the received notification.
type InquiryNotifyPayload struct {
	InquiryID  string `json:"inquiry_id"`
	TemplateID string `json:"template_id"`
	To         string `json:"to,omitempty"`
	Locale     string `json:"locale,omitempty"`
	Reply      string `json:"reply,omitempty"`
}

// ImageProcessPayload points at an uploaded property image.
type ImageProcessPayload struct {
	PropertyID string `json:"property_id"`
	PublicID   string `json:"public_id"`
}

// AssetReleasePayload lists hosted assets that are no longer referenced.
type AssetReleasePayload struct {
	PublicIDs []string `json:"public_ids"`
}

func NewInquiryNotifyTask(payload InquiryNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inquiry notify payload: %w", err)
	}
	return asynq.NewTask(TypeInquiryNotify, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

func NewImageProcessTask(payload ImageProcessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image payload: %w", err)
	}
	return asynq.NewTask(TypeImageProcess, data, asynq.Queue(QueueImages), asynq.MaxRetry(3)), nil
}

// NewAssetReleaseTask returns nil when there is nothing to release.
func NewAssetReleaseTask(publicIDs ...string) (*asynq.Task, error) {
	ids := make([]string, 0, len(publicIDs))
	for _, id := range publicIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(AssetReleasePayload{PublicIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal asset release payload: %w", err)
	}
	return asynq.NewTask(TypeAssetRelease, data, asynq.Queue(QueueLow)), nil
}

// --- Task Server (Processing tasks) ---

// InquiryReader loads the inquiry a notification is about.
type InquiryReader interface {
	Get(ctx context.Context, id primitive.ObjectID) (*models.Inquiry, error)
}

// ImageRemover detaches an image that could not be processed from its property.
type ImageRemover interface {
	RemoveImage(ctx context.Context, id primitive.ObjectID, publicID string) (*models.Property, *models.Image, error)
}

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg       *config.Config
	sender    email.Sender
	storage   storage.IAssetStorage
	inquiries InquiryReader
	images    ImageRemover
	templates services.IEmailTemplateService
}

func NewTaskProcessor(
	cfg *config.Config,
	sender email.Sender,
	assetStorage storage.IAssetStorage,
	inquiries InquiryReader,
	images ImageRemover,
	templates services.IEmailTemplateService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:       cfg,
		sender:    sender,
		storage:   assetStorage,
		inquiries: inquiries,
		images:    images,
		templates: templates,
	}
}

// SetupServer builds the asynq server and registers the handlers for the worker roles.
// It returns a nil server when neither role is enabled.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	if !isBgWorker && !isImageWorker {
		utils.Logger.Info("Running in API mode, no task server started.")
		return nil, nil
	}

	queues := map[string]int{}
	mux := asynq.NewServeMux()
	if isBgWorker {
		queues[QueueCritical] = 6
		queues[QueueDefault] = 3
		queues[QueueLow] = 1
		mux.HandleFunc(TypeInquiryNotify, processor.HandleInquiryNotifyTask)
		mux.HandleFunc(TypeAssetRelease, processor.HandleAssetReleaseTask)
		utils.Logger.Info("Registered background task handlers.")
	}
	if isImageWorker {
		queues[QueueImages] = 5
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		utils.Logger.Info("Registered image processing task handlers.")
	}

	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: queues,
			Logger: utils.Logger,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				utils.Logger.WithError(err).Errorf("Task %s failed, payload: %s", task.Type(), string(task.Payload()))
			}),
		},
	)
	return srv, mux
}

// --- Task Handlers ---

// HandleInquiryNotifyTask renders a template for an inquiry and sends it.
func (p *TaskProcessor) HandleInquiryNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload InquiryNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal inquiry notify payload: %v: %w", err, asynq.SkipRetry)
	}
	inquiryID, err := primitive.ObjectIDFromHex(payload.InquiryID)
	if err != nil {
		return fmt.Errorf("invalid inquiry id %q: %w", payload.InquiryID, asynq.SkipRetry)
	}

	inquiry, err := p.inquiries.Get(ctx, inquiryID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			utils.Logger.Warnf("Inquiry %s no longer exists, dropping %s notification", payload.InquiryID, payload.TemplateID)
			return fmt.Errorf("inquiry not found: %w", asynq.SkipRetry)
		}
		return err
	}

	to := payload.To
	if to == "" {
		if payload.TemplateID == services.TemplateInquiryReceived {
			to = p.cfg.AdminNotifyEmail
		} else {
			to = inquiry.Email
		}
	}
	if to == "" {
		utils.Logger.Infof("No recipient for %s notification of inquiry %s, skipping", payload.TemplateID, payload.InquiryID)
		return nil
	}

	subject, body, err := p.templates.Render(ctx, payload.TemplateID, payload.Locale, map[string]any{
		"AppName": p.cfg.AppName,
		"Inquiry": inquiry,
		"Reply":   payload.Reply,
	})
	if err != nil {
		utils.Logger.WithError(err).Errorf("Failed to render template %s", payload.TemplateID)
		return fmt.Errorf("render %s: %v: %w", payload.TemplateID, err, asynq.SkipRetry)
	}

	msg := email.Message{To: []string{to}, Subject: subject, Body: body, Tag: payload.TemplateID}
	if err := p.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s for inquiry %s: %w", payload.TemplateID, payload.InquiryID, err)
	}
	utils.Logger.Debugf("Sent %s for inquiry %s to %s", payload.TemplateID, payload.InquiryID, to)
	return nil
}

// HandleImageProcessTask downsizes an uploaded image in place. Images that are
// too large or cannot be decoded are removed from the property and the host.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}
	propertyID, err := primitive.ObjectIDFromHex(payload.PropertyID)
	if err != nil || payload.PublicID == "" {
		return fmt.Errorf("invalid image payload %+v: %w", payload, asynq.SkipRetry)
	}
	log := utils.Logger.WithField("publicId", payload.PublicID)

	data, contentType, err := p.storage.Get(ctx, payload.PublicID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Warn("Uploaded image not found, upload likely failed")
			return fmt.Errorf("image not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image: %w", err)
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(data)) > maxSizeBytes {
		log.Warnf("Image exceeds max size (%d > %d bytes)", len(data), maxSizeBytes)
		return p.rejectImage(ctx, propertyID, payload.PublicID, "image exceeds max size")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Warn("Unsupported image format or corrupt image")
		return p.rejectImage(ctx, propertyID, payload.PublicID, "unsupported image format")
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	bounds := img.Bounds()
	if maxDim == 0 || (uint(bounds.Dx()) <= maxDim && uint(bounds.Dy()) <= maxDim) {
		log.Debugf("Image %dx%d within limits", bounds.Dx(), bounds.Dy())
		return nil
	}

	resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if format == "png" {
		err = png.Encode(&buf, resized)
		contentType = "image/png"
	} else {
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
		contentType = "image/jpeg"
	}
	if err != nil {
		return fmt.Errorf("failed to re-encode resized image: %w", err)
	}

	if err := p.storage.Put(ctx, payload.PublicID, buf.Bytes(), contentType); err != nil {
		return fmt.Errorf("failed to upload processed image: %w", err)
	}
	log.Infof("Resized image from %dx%d to %dx%d", bounds.Dx(), bounds.Dy(), resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}

func (p *TaskProcessor) rejectImage(ctx context.Context, propertyID primitive.ObjectID, publicID, reason string) error {
	if _, _, err := p.images.RemoveImage(ctx, propertyID, publicID); err != nil && !apperrors.IsNotFound(err) {
		return fmt.Errorf("failed to detach rejected image: %w", err)
	}
	if err := p.storage.Delete(ctx, publicID); err != nil {
		return fmt.Errorf("failed to delete rejected image: %w", err)
	}
	return fmt.Errorf("%s: %w", reason, asynq.SkipRetry)
}

// HandleAssetReleaseTask deletes hosted assets. Every id is attempted before failing.
func (p *TaskProcessor) HandleAssetReleaseTask(ctx context.Context, t *asynq.Task) error {
	var payload AssetReleasePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal asset release payload: %v: %w", err, asynq.SkipRetry)
	}
	var errs []error
	for _, id := range payload.PublicIDs {
		if err := p.storage.Delete(ctx, id); err != nil {
			utils.Logger.WithError(err).Warnf("Failed to release asset %s", id)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
