package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/Brownie44l1/styler/internal/file"
	"github.com/Brownie44l1/styler/internal/imageio"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Bot is the subset of the Telegram API the handler uses.
type Bot interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
	FileDownloadLink(f *models.File) string
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Runner is the style transfer pipeline.
type Runner interface {
	Run(ctx context.Context, content, style domain.ByteImage, params domain.Params) (domain.ByteImage, error)
}

type Options struct {
	Command          string
	Timeout          time.Duration
	MaxDownloadBytes int64
	MaxPixels        int64
	// AllowedChatIDs restricts the bot to these chats. Empty allows everyone.
	AllowedChatIDs []int64
	Defaults       domain.Params
}

const DefaultCommand = "/style"

// ChatActionRepeat is how often the upload indicator is refreshed; Telegram
// clears it after five seconds.
const ChatActionRepeat = 4 * time.Second

var errMissingPhotos = errors.New("missing photos")

const forbidden = "You are not authorized to use this bot. Your chat ID is %d."

type Handler struct {
	bot    Bot
	runner Runner
	opts   Options
}

func NewHandler(b Bot, runner Runner, opts Options) *Handler {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}

	return &Handler{bot: b, runner: runner, opts: opts}
}

func (h *Handler) usage() string {
	return fmt.Sprintf("usage: reply to a content photo with a style photo captioned %s [density] [sharpness], "+
		"both between 0 and 1", h.opts.Command)
}

// Handle is registered with the bot for text messages and photo captions.
func (h *Handler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	msg := update.Message

	text := msg.Text
	if len(msg.Photo) > 0 {
		text = msg.Caption
	}
	if ParseCommand(text) != h.opts.Command {
		return
	}

	id, _ := uuid.NewV4()
	l := log.With().
		Str("requestId", id.String()).
		Int("messageId", msg.ID).
		Int64("chatId", msg.Chat.ID).
		Str("command", h.opts.Command).
		Logger()

	l.Info().Msg("handling request")

	if !h.isAuthorized(msg.Chat.ID) {
		h.reply(ctx, msg, fmt.Sprintf(forbidden, msg.Chat.ID), l)
		return
	}

	if h.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()
	}

	if err := h.respond(l.WithContext(ctx), msg, text, l); err != nil {
		l.Error().Err(err).Msg("failed to respond to command")
		h.reply(ctx, msg, replyText(err, h.usage()), l)
	}
}

func (h *Handler) respond(ctx context.Context, msg *models.Message, text string, l zerolog.Logger) error {
	params, err := ParseParams(ParseCommandArgs(text), h.opts.Defaults)
	if err != nil {
		return err
	}

	if len(msg.Photo) == 0 || msg.ReplyToMessage == nil || len(msg.ReplyToMessage.Photo) == 0 {
		return errMissingPhotos
	}

	actionCtx, stopAction := context.WithCancel(ctx)
	defer stopAction()
	go h.keepUploading(actionCtx, msg.Chat.ID)

	content, err := h.downloadPhoto(ctx, msg.ReplyToMessage.Photo)
	if err != nil {
		return fmt.Errorf("content photo: %w", err)
	}
	style, err := h.downloadPhoto(ctx, msg.Photo)
	if err != nil {
		return fmt.Errorf("style photo: %w", err)
	}

	out, err := h.runner.Run(ctx, content, style, params)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := imageio.EncodePNG(&buf, out); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	_, err = h.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: msg.Chat.ID,
		Photo: &models.InputFileUpload{
			Filename: fmt.Sprintf("%d.png", msg.ID),
			Data:     &buf,
		},
		ReplyParameters: &models.ReplyParameters{
			MessageID: msg.ID,
			ChatID:    msg.Chat.ID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send photo response: %w", err)
	}

	l.Info().Msg("sent stylized photo")

	return nil
}

func (h *Handler) downloadPhoto(ctx context.Context, photos []models.PhotoSize) (domain.ByteImage, error) {
	f, err := h.bot.GetFile(ctx, &bot.GetFileParams{FileID: pickPhoto(photos, h.opts.MaxDownloadBytes)})
	if err != nil {
		return domain.ByteImage{}, fmt.Errorf("error getting file from telegram api: %w", err)
	}

	data, err := file.DownloadFile(ctx, h.bot.FileDownloadLink(f), h.opts.MaxDownloadBytes)
	if err != nil {
		return domain.ByteImage{}, err
	}

	img, _, err := imageio.Decode(bytes.NewReader(data), h.opts.MaxPixels)
	return img, err
}

func (h *Handler) keepUploading(ctx context.Context, chatID int64) {
	ticker := time.NewTicker(ChatActionRepeat)
	defer ticker.Stop()

	for {
		_, err := h.bot.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: models.ChatActionUploadPhoto,
		})
		if err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Int64("chatId", chatID).Msg("error sending chat action")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) reply(ctx context.Context, msg *models.Message, text string, l zerolog.Logger) {
	// The request context may already be expired when reporting a timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	_, err := h.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
		ReplyParameters: &models.ReplyParameters{
			MessageID: msg.ID,
			ChatID:    msg.Chat.ID,
		},
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to send reply")
	}
}

func (h *Handler) isAuthorized(chatID int64) bool {
	return len(h.opts.AllowedChatIDs) == 0 || slices.Contains(h.opts.AllowedChatIDs, chatID)
}

func replyText(err error, usage string) string {
	switch {
	case errors.Is(err, errMissingPhotos), errors.Is(err, domain.ErrParameterOutOfRange):
		return usage
	case errors.Is(err, context.DeadlineExceeded):
		return "style transfer timed out, please try again later"
	case errors.Is(err, domain.ErrModelInvocation):
		return "the style model failed to process these photos"
	case errors.Is(err, domain.ErrInvalidImageShape), errors.Is(err, imageio.ErrUnsupportedFormat):
		return "could not read one of the photos"
	default:
		return fmt.Sprintf("failed to stylize photo: %s", err)
	}
}

// ParseCommand returns the first word of text without a trailing @botname.
func ParseCommand(text string) string {
	command, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	command, _, _ = strings.Cut(command, "@")
	return command
}

// ParseCommandArgs returns everything after the first word of text.
func ParseCommandArgs(text string) string {
	_, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.TrimSpace(args)
}

// ParseParams reads "[density] [sharpness]". Missing values keep defaults.
func ParseParams(args string, defaults domain.Params) (domain.Params, error) {
	fields := strings.Fields(args)
	if len(fields) > 2 {
		return domain.Params{}, fmt.Errorf("%w: expected at most two values", domain.ErrParameterOutOfRange)
	}

	params := defaults
	targets := []*float32{&params.Density, &params.Sharpness}
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return domain.Params{}, fmt.Errorf("%w: %q is not a number", domain.ErrParameterOutOfRange, field)
		}
		*targets[i] = float32(v)
	}

	return params, nil
}

// pickPhoto returns the largest size that fits in maxBytes, or the smallest
// size if none does. Telegram lists sizes in ascending order.
func pickPhoto(photos []models.PhotoSize, maxBytes int64) string {
	for i := len(photos) - 1; i >= 0; i-- {
		if maxBytes <= 0 || int64(photos[i].FileSize) <= maxBytes {
			return photos[i].FileID
		}
	}

	return photos[0].FileID
}
